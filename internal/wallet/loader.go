package wallet

import (
	"bufio"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	gethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// Paths points at the operator's input files. An empty Proxies path runs
// every wallet without a proxy.
type Paths struct {
	Proxies string
	Keys    string
	APIKey  string
}

// Inputs is the raw content of the input files.
type Inputs struct {
	Proxies []string
	Keys    []string
	APIKey  string
}

// WalletContext is everything a single task needs to know about its wallet.
type WalletContext struct {
	Index      int
	PrivateKey *ecdsa.PrivateKey
	Address    common.Address
	Proxy      *ProxyConfig
}

// LoadLines reads a newline-delimited file, trimming lines and skipping blanks.
func LoadLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

// LoadInputs reads all input files. Every problem found is reported in one
// joined error so the operator can fix them in a single pass.
func LoadInputs(p Paths) (Inputs, error) {
	var (
		in   Inputs
		errs []error
	)
	read := func(label, path string) []string {
		if strings.TrimSpace(path) == "" {
			errs = append(errs, fmt.Errorf("%s: path is not set", label))
			return nil
		}
		lines, err := LoadLines(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", label, err))
			return nil
		}
		if len(lines) == 0 {
			errs = append(errs, fmt.Errorf("%s: %s is empty", label, path))
		}
		return lines
	}

	if lines := read("api key", p.APIKey); len(lines) > 0 {
		in.APIKey = lines[0]
	}
	in.Keys = read("private keys", p.Keys)
	if strings.TrimSpace(p.Proxies) != "" {
		in.Proxies = read("proxies", p.Proxies)
		if len(in.Proxies) > 0 && len(in.Keys) > 0 && len(in.Proxies) != len(in.Keys) {
			errs = append(errs, fmt.Errorf("proxies (%d) and private keys (%d) must have the same count", len(in.Proxies), len(in.Keys)))
		}
	}
	return in, errors.Join(errs...)
}

// Wallets parses keys and proxies into task contexts, pairing them by line.
func (in Inputs) Wallets() ([]WalletContext, error) {
	var errs []error
	out := make([]WalletContext, 0, len(in.Keys))
	for i, k := range in.Keys {
		prv, err := hexToECDSAPriv(k)
		if err != nil {
			errs = append(errs, fmt.Errorf("private key #%d: %w", i+1, err))
			continue
		}
		w := WalletContext{
			Index:      i + 1,
			PrivateKey: prv,
			Address:    gethcrypto.PubkeyToAddress(prv.PublicKey),
		}
		if i < len(in.Proxies) {
			px, err := ParseProxy(in.Proxies[i])
			if err != nil {
				errs = append(errs, fmt.Errorf("proxy #%d: %w", i+1, err))
				continue
			}
			w.Proxy = px
		}
		out = append(out, w)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return out, nil
}

// Parse hex ECDSA private key (with / without 0x).
func hexToECDSAPriv(s string) (*ecdsa.PrivateKey, error) {
	h := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(s), "0x"))
	if len(h) == 0 {
		return nil, errors.New("empty private key")
	}
	return gethcrypto.HexToECDSA(h)
}
