package secretmanager

import (
	"os"

	vault "github.com/hashicorp/vault-client-go"
	"go.uber.org/fx"
)

// Module provides a vault client configured from the VAULT_* environment.
// config.LoadConfig reads database and redis credentials through it when
// VAULT.ENABLE is set.
var Module = fx.Module("secretmanager", fx.Provide(ProvideVault))

// Option returns Module when VAULT_ADDR is set, an empty option otherwise.
func Option() fx.Option {
	if os.Getenv("VAULT_ADDR") == "" {
		return fx.Options()
	}
	return Module
}

func ProvideVault() (*vault.Client, error) {
	client, err := vault.New(
		vault.WithEnvironment(),
	)
	if err != nil {
		return nil, err
	}

	return client, nil
}
