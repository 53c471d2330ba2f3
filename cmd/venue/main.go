// Package main is the mock FIX venue for exercising the engine end to end.
package main

import (
	"os"
	"strings"

	"github.com/quickfixgo/quickfix"

	"github.com/true-markets/fixsim/env"
)

func main() {

	filename := os.Getenv("SETTINGS")
	if filename == "" {
		filename = "settings.cfg"
	}
	file, err := os.Open(filename)
	if err != nil {
		os.Stderr.WriteString(err.Error())
		os.Exit(1)
	}
	settings, err := quickfix.ParseSettings(file)
	if err != nil {
		os.Stderr.WriteString(err.Error())
		os.Exit(1)
	}
	store := quickfix.NewMemoryStoreFactory()
	log := quickfix.NewScreenLogFactory()

	app := NewApplication(secrets())

	acceptor, err := quickfix.NewAcceptor(app, store, settings, log)
	if err != nil {
		os.Stderr.WriteString(err.Error())
		os.Exit(1)
	}

	acceptor.Start()
	<-env.Signal()
	acceptor.Stop()

}

// secrets reads SECRETS, formatted "keyID=secret,keyID=secret". Empty means
// logons are not authenticated.
func secrets() map[string]string {
	value := os.Getenv("SECRETS")
	if value == "" {
		return nil
	}
	secrets := map[string]string{}
	for _, pair := range strings.Split(value, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		secrets[strings.TrimSpace(parts[0])] = parts[1]
	}
	return secrets
}
