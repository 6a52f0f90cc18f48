package signals

// Boost is the position-size multiplier a signal suggests. Low-confidence
// signals never move the size.
func Boost(s Signal) float64 {
	switch s.Source {
	case SourceNews:
		return newsBoost(s)
	case SourceOptions:
		return optionsBoost(s)
	case SourceInsider:
		return insiderBoost(s)
	case SourceSocial:
		return socialBoost(s)
	case SourceSqueeze:
		return squeezeBoost(s)
	case SourceTrends:
		return trendsBoost(s)
	}
	return 1.0
}

// 0.5 to 1.5, scaled by sentiment score and confidence.
func newsBoost(s Signal) float64 {
	if s.ArticleCount < 3 {
		return 1.0
	}
	b := 1.0 + s.Score*0.5*float64(s.Confidence)/100
	return max(0.5, min(1.5, b))
}

// 0.5 to 2.0
func optionsBoost(s Signal) float64 {
	if s.Confidence < 50 {
		return 1.0
	}
	switch s.Label {
	case LabelBullish:
		return tiered(s.Confidence, 1.5, 1.3, 1.1)
	case LabelBearish:
		return tiered(s.Confidence, 0.5, 0.7, 0.9)
	}
	return 1.0
}

// 0.7 to 1.8
func insiderBoost(s Signal) float64 {
	if s.Confidence < 50 {
		return 1.0
	}
	switch s.Label {
	case LabelBullish:
		switch {
		case s.Confidence > 80 && s.BuyCount >= 3:
			return 1.8
		case s.Confidence > 75:
			return 1.5
		default:
			return 1.2
		}
	case LabelBearish:
		return 0.7
	}
	return 1.0
}

// 0.6 to 1.6
func socialBoost(s Signal) float64 {
	if s.Confidence < 50 {
		return 1.0
	}
	switch s.Label {
	case LabelBullish:
		switch {
		case s.Mentions > 20 && s.Confidence > 75:
			return 1.6
		case s.Confidence > 70:
			return 1.3
		default:
			return 1.1
		}
	case LabelBearish:
		return 0.6
	}
	return 1.0
}

// 1.0 to 2.0
func squeezeBoost(s Signal) float64 {
	if s.Confidence < 50 {
		return 1.0
	}
	switch s.Label {
	case LabelActiveSqueeze:
		return tiered(s.Confidence, 2.0, 1.7, 1.4)
	case LabelSqueezePotential:
		if s.Confidence > 70 {
			return 1.3
		}
		return 1.1
	}
	return 1.0
}

// 0.8 to 1.4
func trendsBoost(s Signal) float64 {
	if s.Confidence < 50 {
		return 1.0
	}
	switch s.Label {
	case LabelSurging:
		switch {
		case s.Confidence > 75:
			return 1.4
		case s.Confidence > 65:
			return 1.2
		default:
			return 1.1
		}
	case LabelRising:
		return 1.05
	case LabelFalling:
		return 0.8
	}
	return 1.0
}

// tiered picks by confidence above 80, above 70, or otherwise.
func tiered(confidence int, above80, above70, rest float64) float64 {
	switch {
	case confidence > 80:
		return above80
	case confidence > 70:
		return above70
	default:
		return rest
	}
}
