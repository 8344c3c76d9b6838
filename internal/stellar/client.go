package stellar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stellar/go/clients/horizonclient"
	"github.com/stellar/go/keypair"
	"github.com/stellar/go/network"
	"github.com/stellar/go/protocols/horizon"
	"github.com/stellar/go/txnbuild"
	"go.uber.org/zap"

	"github.com/aihub/ai-gateway/internal/config"
	"github.com/aihub/ai-gateway/internal/logger"
)

// NativeAsset 原生资产代码
const NativeAsset = "XLM"

// 网络环境
const (
	NetworkTestnet = "testnet"
	NetworkPublic  = "public"
)

// MinPaymentAmount 网络可表示的最小金额
var MinPaymentAmount = decimal.New(1, -7)

// HorizonAPI 账本客户端用到的 Horizon 接口
type HorizonAPI interface {
	AccountDetail(request horizonclient.AccountRequest) (horizon.Account, error)
	SubmitTransaction(transaction *txnbuild.Transaction) (horizon.Transaction, error)
	Ledgers(request horizonclient.LedgerRequest) (horizon.LedgersPage, error)
}

// AssetBalance 账户的单个资产余额
type AssetBalance struct {
	Asset  string           `json:"asset"`
	Amount decimal.Decimal  `json:"balance"`
	Limit  *decimal.Decimal `json:"limit,omitempty"`
}

// SubmitResult 交易提交结果
type SubmitResult struct {
	TxHash  string `json:"hash"`
	Ledger  int32  `json:"ledger"`
	Success bool   `json:"successful"`
}

// AccountStatus 账户存在性探测结果
type AccountStatus struct {
	Exists  bool             `json:"exists"`
	Balance *decimal.Decimal `json:"balance,omitempty"`
	Reason  string           `json:"reason,omitempty"`
}

// RealBalance 私钥对应账户的链上余额
type RealBalance struct {
	Address       string          `json:"address"`
	NativeBalance decimal.Decimal `json:"balance"`
	Balances      []AssetBalance  `json:"balances"`
	Sequence      int64           `json:"sequence"`
}

// AccountInfo 账户详情
type AccountInfo struct {
	ID            string         `json:"id"`
	Sequence      int64          `json:"sequence"`
	SubentryCount int32          `json:"subentryCount"`
	Balances      []AssetBalance `json:"balances"`
	Thresholds    Thresholds     `json:"thresholds"`
	Flags         Flags          `json:"flags"`
	Signers       []Signer       `json:"signers"`
}

// Thresholds 账户签名门限
type Thresholds struct {
	Low  byte `json:"low"`
	Med  byte `json:"med"`
	High byte `json:"high"`
}

// Flags 账户标志
type Flags struct {
	AuthRequired  bool `json:"authRequired"`
	AuthRevocable bool `json:"authRevocable"`
	AuthImmutable bool `json:"authImmutable"`
}

// Signer 账户签名者
type Signer struct {
	Key    string `json:"key"`
	Weight int32  `json:"weight"`
	Type   string `json:"type"`
}

// LedgerSummary 最新账本摘要
type LedgerSummary struct {
	Sequence int32     `json:"sequence"`
	Hash     string    `json:"hash"`
	ClosedAt time.Time `json:"closedAt"`
}

// NetworkInfo 网络信息
type NetworkInfo struct {
	Network      string        `json:"network"`
	HorizonURL   string        `json:"horizonUrl"`
	Passphrase   string        `json:"passphrase"`
	LatestLedger LedgerSummary `json:"latestLedger"`
	FriendbotURL string        `json:"friendbotUrl,omitempty"`
}

// TestKeypair 测试网密钥对
type TestKeypair struct {
	Address string `json:"publicKey"`
	Secret  string `json:"secretKey"`
}

// Client 账本网络客户端
type Client struct {
	horizon               HorizonAPI
	network               string
	passphrase            string
	horizonURL            string
	friendbotURL          string
	settlementDestination string
	requestTimeout        time.Duration
	txTimeout             time.Duration
	minTxBalance          decimal.Decimal
	logger                *zap.Logger
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.StellarConfig) (*Client, error) {
	api := &horizonclient.Client{
		HorizonURL: cfg.HorizonURL,
		HTTP:       &http.Client{Timeout: cfg.RequestTimeout},
	}
	return NewClientWithAPI(api, cfg)
}

// NewClientWithAPI 使用指定的 Horizon 实现创建客户端
func NewClientWithAPI(api HorizonAPI, cfg config.StellarConfig) (*Client, error) {
	passphrase := network.TestNetworkPassphrase
	if cfg.Network == NetworkPublic {
		passphrase = network.PublicNetworkPassphrase
	}

	if cfg.SettlementDestination != "" && !IsValidAddress(cfg.SettlementDestination) {
		return nil, fmt.Errorf("settlement destination: %w", ErrInvalidAddress)
	}

	requestTimeout := cfg.RequestTimeout
	if requestTimeout <= 0 {
		requestTimeout = 30 * time.Second
	}
	txTimeout := cfg.TxTimeout
	if txTimeout <= 0 {
		txTimeout = 180 * time.Second
	}

	return &Client{
		horizon:               api,
		network:               cfg.Network,
		passphrase:            passphrase,
		horizonURL:            cfg.HorizonURL,
		friendbotURL:          cfg.FriendbotURL,
		settlementDestination: cfg.SettlementDestination,
		requestTimeout:        requestTimeout,
		txTimeout:             txTimeout,
		minTxBalance:          decimal.NewFromFloat(cfg.MinTransactionBalance),
		logger:                logger.Named("stellar"),
	}, nil
}

// IsPublic 是否连接生产网络
func (c *Client) IsPublic() bool {
	return c.network == NetworkPublic
}

// Network 网络名称
func (c *Client) Network() string {
	return c.network
}

// GetBalances 查询账户全部资产余额
func (c *Client) GetBalances(ctx context.Context, address string) ([]AssetBalance, error) {
	account, err := c.loadAccount(ctx, address)
	if err != nil {
		return nil, err
	}
	return convertBalances(account.Balances), nil
}

// RealBalance 查询私钥对应账户的链上余额
func (c *Client) RealBalance(ctx context.Context, secret string) (*RealBalance, error) {
	kp, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}

	account, err := c.loadAccount(ctx, kp.Address())
	if err != nil {
		return nil, err
	}

	native, err := nativeBalance(account)
	if err != nil {
		return nil, err
	}
	seq, _ := account.GetSequenceNumber()

	return &RealBalance{
		Address:       kp.Address(),
		NativeBalance: native,
		Balances:      convertBalances(account.Balances),
		Sequence:      seq,
	}, nil
}

// AccountInfo 查询账户详情
func (c *Client) AccountInfo(ctx context.Context, address string) (*AccountInfo, error) {
	account, err := c.loadAccount(ctx, address)
	if err != nil {
		return nil, err
	}

	seq, _ := account.GetSequenceNumber()
	info := &AccountInfo{
		ID:            account.AccountID,
		Sequence:      seq,
		SubentryCount: account.SubentryCount,
		Balances:      convertBalances(account.Balances),
		Thresholds: Thresholds{
			Low:  account.Thresholds.LowThreshold,
			Med:  account.Thresholds.MedThreshold,
			High: account.Thresholds.HighThreshold,
		},
		Flags: Flags{
			AuthRequired:  account.Flags.AuthRequired,
			AuthRevocable: account.Flags.AuthRevocable,
			AuthImmutable: account.Flags.AuthImmutable,
		},
	}
	for _, s := range account.Signers {
		info.Signers = append(info.Signers, Signer{Key: s.Key, Weight: s.Weight, Type: s.Type})
	}
	return info, nil
}

// BuildPaymentTransaction 构建未签名的支付交易，返回 base64 XDR
func (c *Client) BuildPaymentTransaction(ctx context.Context, source string, amount decimal.Decimal) (string, error) {
	if !IsValidAddress(source) {
		return "", ErrInvalidAddress
	}

	account, err := c.loadAccount(ctx, source)
	if err != nil {
		return "", err
	}

	native, err := nativeBalance(account)
	if err != nil {
		return "", err
	}
	if native.LessThan(c.minTxBalance) {
		return "", &InsufficientReserveError{Address: source, Balance: native, Minimum: c.minTxBalance}
	}

	if amount.LessThan(MinPaymentAmount) {
		amount = MinPaymentAmount
	}
	amountStr := amount.StringFixed(7)

	destination := c.settlementDestination
	if destination == "" {
		destination = source
	}

	tx, err := txnbuild.NewTransaction(txnbuild.TransactionParams{
		SourceAccount:        &account,
		IncrementSequenceNum: true,
		Operations: []txnbuild.Operation{
			&txnbuild.Payment{
				Destination: destination,
				Amount:      amountStr,
				Asset:       txnbuild.NativeAsset{},
			},
		},
		BaseFee: txnbuild.MinBaseFee,
		Memo:    txnbuild.MemoText(fmt.Sprintf("AI Gateway: %sXLM", amountStr)),
		Preconditions: txnbuild.Preconditions{
			TimeBounds: txnbuild.NewTimeout(int64(c.txTimeout.Seconds())),
		},
	})
	if err != nil {
		return "", fmt.Errorf("build payment transaction: %w", err)
	}

	xdr, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("encode payment transaction: %w", err)
	}

	c.logger.Debug("支付交易已构建",
		zap.String("source", MaskAddress(source)),
		zap.String("destination", MaskAddress(destination)),
		zap.String("amount", amountStr))
	return xdr, nil
}

// SignAndSubmit 签名并提交交易
func (c *Client) SignAndSubmit(ctx context.Context, xdr, secret string) (*SubmitResult, error) {
	kp, err := ParseSecret(secret)
	if err != nil {
		return nil, err
	}

	tx, err := c.parseTransaction(xdr)
	if err != nil {
		return nil, err
	}

	if source := tx.SourceAccount().AccountID; source != kp.Address() {
		return nil, &KeyMismatchError{Expected: source, Actual: kp.Address()}
	}

	signed, err := tx.Sign(c.passphrase, kp)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}

	resp, err := callWithTimeout(ctx, c.requestTimeout, func() (horizon.Transaction, error) {
		return c.horizon.SubmitTransaction(signed)
	})
	if err != nil {
		return nil, classifySubmitError(err)
	}

	c.logger.Info("交易已提交",
		zap.String("hash", resp.Hash),
		zap.Int32("ledger", resp.Ledger),
		zap.Bool("successful", resp.Successful))

	return &SubmitResult{TxHash: resp.Hash, Ledger: resp.Ledger, Success: resp.Successful}, nil
}

// AccountExists 探测账户是否存在，不会返回错误
func (c *Client) AccountExists(ctx context.Context, address string) AccountStatus {
	if !IsValidAddress(address) {
		return AccountStatus{Exists: false, Reason: "invalid address"}
	}

	account, err := c.loadAccount(ctx, address)
	if err != nil {
		var notFound *AccountNotFoundError
		if errors.As(err, &notFound) {
			return AccountStatus{Exists: false, Reason: "account not found on the network (not funded)"}
		}
		return AccountStatus{Exists: false, Reason: err.Error()}
	}

	status := AccountStatus{Exists: true}
	if native, err := nativeBalance(account); err == nil {
		status.Balance = &native
	}
	return status
}

// NetworkInfo 查询网络与最新账本信息
func (c *Client) NetworkInfo(ctx context.Context) (*NetworkInfo, error) {
	page, err := callWithTimeout(ctx, c.requestTimeout, func() (horizon.LedgersPage, error) {
		return c.horizon.Ledgers(horizonclient.LedgerRequest{Order: horizonclient.OrderDesc, Limit: 1})
	})
	if err != nil {
		return nil, &NetworkError{Op: "ledgers", Err: err}
	}

	info := &NetworkInfo{
		Network:    c.network,
		HorizonURL: c.horizonURL,
		Passphrase: c.passphrase,
	}
	if len(page.Embedded.Records) > 0 {
		latest := page.Embedded.Records[0]
		info.LatestLedger = LedgerSummary{Sequence: latest.Sequence, Hash: latest.Hash, ClosedAt: latest.ClosedAt}
	}
	if !c.IsPublic() {
		info.FriendbotURL = c.friendbotURL
	}
	return info, nil
}

// GenerateTestKeypair 生成测试网密钥对，生产网络禁用
func (c *Client) GenerateTestKeypair() (*TestKeypair, error) {
	if c.IsPublic() {
		return nil, ErrProductionDisabled
	}
	kp, err := keypair.Random()
	if err != nil {
		return nil, fmt.Errorf("generate keypair: %w", err)
	}
	return &TestKeypair{Address: kp.Address(), Secret: kp.Seed()}, nil
}

func (c *Client) loadAccount(ctx context.Context, address string) (horizon.Account, error) {
	if !IsValidAddress(address) {
		return horizon.Account{}, ErrInvalidAddress
	}

	account, err := callWithTimeout(ctx, c.requestTimeout, func() (horizon.Account, error) {
		return c.horizon.AccountDetail(horizonclient.AccountRequest{AccountID: address})
	})
	if err != nil {
		if isNotFound(err) {
			return horizon.Account{}, &AccountNotFoundError{Address: address}
		}
		return horizon.Account{}, &NetworkError{Op: "account detail", Err: err}
	}
	return account, nil
}

func (c *Client) parseTransaction(xdr string) (*txnbuild.Transaction, error) {
	generic, err := txnbuild.TransactionFromXDR(xdr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	tx, ok := generic.Transaction()
	if !ok {
		return nil, fmt.Errorf("%w: fee bump transactions are not supported", ErrInvalidTransaction)
	}
	return tx, nil
}

// callWithTimeout 在超时或上下文取消时放弃等待 Horizon 调用
func callWithTimeout[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	case r := <-ch:
		return r.value, r.err
	}
}

func isNotFound(err error) bool {
	if hErr := horizonclient.GetError(err); hErr != nil {
		return hErr.Problem.Status == http.StatusNotFound
	}
	return false
}

func classifySubmitError(err error) error {
	hErr := horizonclient.GetError(err)
	if hErr == nil {
		return &NetworkError{Op: "submit transaction", Err: err}
	}

	codes, codesErr := hErr.ResultCodes()
	if codesErr != nil || codes == nil {
		if hErr.Problem.Status >= http.StatusInternalServerError || hErr.Problem.Status == 0 {
			return &NetworkError{Op: "submit transaction", Err: err}
		}
		return &SubmissionRejectedError{ResultCode: hErr.Problem.Title}
	}

	resultCode := codes.TransactionCode
	if resultCode == "" {
		resultCode = codes.InnerTransactionCode
	}
	return &SubmissionRejectedError{ResultCode: resultCode, OperationCodes: codes.OperationCodes}
}

func nativeBalance(account horizon.Account) (decimal.Decimal, error) {
	for _, b := range account.Balances {
		if b.Type == "native" {
			amount, err := decimal.NewFromString(b.Balance)
			if err != nil {
				return decimal.Zero, fmt.Errorf("parse native balance: %w", err)
			}
			return amount, nil
		}
	}
	return decimal.Zero, nil
}

func convertBalances(balances []horizon.Balance) []AssetBalance {
	out := make([]AssetBalance, 0, len(balances))
	for _, b := range balances {
		amount, err := decimal.NewFromString(b.Balance)
		if err != nil {
			continue
		}
		ab := AssetBalance{Asset: NativeAsset, Amount: amount}
		if b.Type != "native" {
			ab.Asset = b.Code + ":" + b.Issuer
			if limit, err := decimal.NewFromString(b.Limit); err == nil {
				ab.Limit = &limit
			}
		}
		out = append(out, ab)
	}
	return out
}
