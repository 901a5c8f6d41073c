package multichain

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/pendergraft/chainscout/internal/explorer"
	"github.com/pendergraft/chainscout/internal/manager"
	"github.com/pendergraft/chainscout/internal/validation"
)

// ErrUnknownOperation is returned for an operation name with no registered implementation.
var ErrUnknownOperation = errors.New("unknown operation")

// Named operations available to remote callers
const (
	OpVerification = "verification"
	OpSource       = "source"
	OpABI          = "abi"
	OpCreation     = "creation"
	OpPing         = "ping"
)

type operationFactory func(address string) manager.Operation

var operations = map[string]operationFactory{
	OpVerification: func(address string) manager.Operation {
		return func(ctx context.Context, c explorer.Client) (any, error) {
			verified, err := c.IsContractVerified(ctx, address)
			if err != nil {
				return nil, err
			}
			return map[string]any{"address": address, "is_verified": verified, "contract_url": c.ContractURL(address)}, nil
		}
	},
	OpSource: func(address string) manager.Operation {
		return func(ctx context.Context, c explorer.Client) (any, error) {
			return c.FetchContractSource(ctx, address)
		}
	},
	OpABI: func(address string) manager.Operation {
		return func(ctx context.Context, c explorer.Client) (any, error) {
			return c.FetchABI(ctx, address)
		}
	},
	OpCreation: func(address string) manager.Operation {
		return func(ctx context.Context, c explorer.Client) (any, error) {
			return c.FetchContractCreation(ctx, address)
		}
	},
	OpPing: func(string) manager.Operation {
		return func(ctx context.Context, c explorer.Client) (any, error) {
			if err := c.Ping(ctx); err != nil {
				return nil, err
			}
			return map[string]any{"reachable": true, "explorer": c.Name()}, nil
		}
	},
}

// OperationNames returns the registered operation names, sorted
func OperationNames() []string {
	names := make([]string, 0, len(operations))
	for name := range operations {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NamedOperation builds the operation registered under name. Every operation except
// ping requires a valid contract address.
func NamedOperation(name, address string) (manager.Operation, error) {
	factory, ok := operations[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownOperation, name)
	}
	if name != OpPing {
		if err := validation.ValidateAddress(address); err != nil {
			return nil, err
		}
		address = validation.NormalizeAddress(address)
	}
	return factory(address), nil
}

// Run resolves a named operation and executes it across networks
func (o *Orchestrator) Run(ctx context.Context, name, address string, networks []string, opts ...Option) (*Report, error) {
	op, err := NamedOperation(name, address)
	if err != nil {
		return nil, err
	}
	return o.ExecuteMultiChain(ctx, networks, name, op, opts...)
}
