package data

import (
	"github.com/agenciageraleads/summi-worker/evolution"
	"github.com/agenciageraleads/summi-worker/internal/biz/repo"
)

// NewGatewayRepo creates the messaging gateway repository.
// The Evolution client already satisfies repo.GatewayRepo.
func NewGatewayRepo(client *evolution.Client) repo.GatewayRepo {
	if client == nil {
		return nil
	}
	return client
}
