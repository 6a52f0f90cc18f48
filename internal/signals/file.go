package signals

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"dai-trader/internal/errs"
)

// FileDocument is the operator-maintained context file. Every section is
// optional.
type FileDocument struct {
	Macro    *MacroContext                `json:"macro,omitempty"`
	Economic *EconomicContext             `json:"economic,omitempty"`
	Crypto   *CryptoContext               `json:"crypto,omitempty"`
	Signals  map[Source]map[string]Signal `json:"signals,omitempty"`
}

// File serves global contexts and per-symbol signals from a JSON file.
// The file is read again whenever its modification time changes; a file
// that turns unreadable keeps the last good document.
type File struct {
	path    string
	mu      sync.Mutex
	modTime time.Time
	doc     FileDocument
}

// OpenFile reads path once and fails when it is missing or invalid.
func OpenFile(path string) (*File, error) {
	f := &File{path: path}
	if _, err := f.load(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) load() (FileDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if err != nil {
		return f.doc, errs.Data("signals.file", err)
	}
	if !f.modTime.IsZero() && info.ModTime().Equal(f.modTime) {
		return f.doc, nil
	}

	raw, err := os.ReadFile(f.path)
	if err != nil {
		return f.doc, errs.Data("signals.file", err)
	}
	var doc FileDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return f.doc, errs.Data("signals.file", fmt.Errorf("decode %s: %w", f.path, err))
	}
	f.doc, f.modTime = doc, info.ModTime()
	return doc, nil
}

// Document returns the current contents.
func (f *File) Document() (FileDocument, error) {
	return f.load()
}

func (f *File) Macro(context.Context) (MacroContext, error) {
	doc, err := f.load()
	if err == nil && doc.Macro == nil {
		err = errs.NotFound("signals.file", "macro")
	}
	if err != nil {
		return MacroContext{}, err
	}
	return *doc.Macro, nil
}

func (f *File) Economic(context.Context) (EconomicContext, error) {
	doc, err := f.load()
	if err == nil && doc.Economic == nil {
		err = errs.NotFound("signals.file", "economic")
	}
	if err != nil {
		return EconomicContext{}, err
	}
	return *doc.Economic, nil
}

func (f *File) Crypto(context.Context) (CryptoContext, error) {
	doc, err := f.load()
	if err == nil && doc.Crypto == nil {
		err = errs.NotFound("signals.file", "crypto")
	}
	if err != nil {
		return CryptoContext{}, err
	}
	return *doc.Crypto, nil
}

// Sources lists the per-symbol sources present in the file, in
// aggregation order.
func (f *File) Sources() []Source {
	doc, _ := f.load()
	var out []Source
	for _, s := range Sources {
		if _, ok := doc.Signals[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// Provider serves source's per-symbol signals. Symbols missing from the
// file read neutral.
func (f *File) Provider(source Source) Provider {
	return ProviderFunc{Src: source, Fn: func(_ context.Context, symbol string) (Signal, error) {
		doc, err := f.load()
		if err != nil {
			return Signal{}, err
		}
		sig, ok := doc.Signals[source][symbol]
		if !ok {
			return Neutral(source, "no data"), nil
		}
		sig.Source = source
		return sig, nil
	}}
}

// Attach registers every section present in the file with c. A crypto
// section is skipped when keepCrypto is set, so a live crypto feed stays
// in charge.
func (f *File) Attach(c *Collector, keepCrypto bool) error {
	doc, err := f.load()
	if err != nil {
		return err
	}
	if doc.Macro != nil {
		c.SetMacroProvider(f)
	}
	if doc.Economic != nil {
		c.SetEconomicProvider(f)
	}
	if doc.Crypto != nil && !keepCrypto {
		c.SetCryptoProvider(f)
	}
	for _, s := range f.Sources() {
		c.AddProvider(f.Provider(s))
	}
	return nil
}
