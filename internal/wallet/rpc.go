package wallet

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
	"moff.io/wallet-verify/pkg/errors"
	"moff.io/wallet-verify/pkg/log"
)

type rpcLocator struct {
	endpoint string
}

// NewRPCLocator locates a wallet exposing the EIP-1193 methods over JSON-RPC,
// e.g. a desktop wallet listening on a local port.
func NewRPCLocator(endpoint string) Locator {
	return &rpcLocator{endpoint: endpoint}
}

func (l *rpcLocator) Locate(ctx context.Context) (Provider, error) {
	client, err := rpc.DialContext(ctx, l.endpoint)
	if err != nil {
		log.Warnf("dial wallet rpc %v:%v", l.endpoint, err)
		return nil, ErrNoProvider
	}
	// Dialing http endpoints is lazy, probe the wallet before handing it out.
	var chainID hexutil.Big
	if err := client.CallContext(ctx, &chainID, "eth_chainId"); err != nil {
		client.Close()
		log.Warnf("probe wallet rpc %v:%v", l.endpoint, err)
		return nil, ErrNoProvider
	}
	log.Debugf("wallet rpc %v located on chain %v", l.endpoint, chainID.ToInt())
	return NewRPCProvider(client), nil
}

type rpcProvider struct {
	client *rpc.Client

	mu      sync.Mutex
	account *common.Address
}

func NewRPCProvider(client *rpc.Client) Provider {
	return &rpcProvider{client: client}
}

func (p *rpcProvider) RequestAccounts(ctx context.Context) (string, error) {
	var accounts []common.Address
	if err := p.client.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return "", rpcError(err, "eth_requestAccounts")
	}
	if len(accounts) == 0 {
		return "", errors.New("wallet returned no accounts")
	}
	p.mu.Lock()
	p.account = &accounts[0]
	p.mu.Unlock()
	return accounts[0].Hex(), nil
}

func (p *rpcProvider) SignMessage(ctx context.Context, text string) (string, error) {
	p.mu.Lock()
	account := p.account
	p.mu.Unlock()
	if account == nil {
		return "", ErrNotConnected
	}
	var signature hexutil.Bytes
	err := p.client.CallContext(ctx, &signature, "personal_sign", hexutil.Encode([]byte(text)), *account)
	if err != nil {
		return "", rpcError(err, "personal_sign")
	}
	return signature.String(), nil
}

func (p *rpcProvider) Close() error {
	p.client.Close()
	return nil
}

func rpcError(err error, method string) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == RejectedCode {
		return errors.Wrapf(ErrUserRejected, "%s: %s", method, rpcErr.Error())
	}
	return errors.Wrap(err, method)
}
