package protected

import (
	"context"
	"fmt"

	"github.com/hashicorp/vault-client-go"
	"github.com/hashicorp/vault-client-go/schema"

	"ssoengine/internal/config"
	"ssoengine/internal/lib/extensions"
)

// Vault is a client instance to Hashicorp Vault secure storage for storing secrets
type Vault struct {
	Client *vault.Client
}

// NewVaultClient creates new instance of Vault client; a configured token is used as is
func NewVaultClient(conf config.VaultConfig) (*Vault, error) {
	client, err := vault.New(
		vault.WithAddress(conf.Address),
		vault.WithRequestTimeout(conf.Timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("error while creating new vault client instance: %w", err)
	}
	if conf.Token != "" {
		if err = client.SetToken(conf.Token); err != nil {
			return nil, fmt.Errorf("error while setting token: %w", err)
		}
	}
	return &Vault{Client: client}, nil
}

// AuthUser authenticates the service as an AppRole using role and secret ids read from files
func (v *Vault) AuthUser(ctx context.Context, roleIDPath string, secretIDPath string) error {
	roleID, err := extensions.GetTextFromFile(roleIDPath)
	if err != nil {
		return err
	}
	secretID, err := extensions.GetTextFromFile(secretIDPath)
	if err != nil {
		return err
	}
	resp, err := v.Client.Auth.AppRoleLogin(ctx, schema.AppRoleLoginRequest{
		RoleId:   roleID,
		SecretId: secretID,
	})
	if err != nil {
		return fmt.Errorf("approle login failed: %w", err)
	}
	if resp.Auth == nil {
		return fmt.Errorf("approle login returned no auth data")
	}
	return v.Client.SetToken(resp.Auth.ClientToken)
}
