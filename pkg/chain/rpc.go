package chain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/covenantlabs/mandate/pkg/contracts"
)

// Receipt is the chain's acknowledgement of a confirmed memo transaction.
type Receipt struct {
	Signature string
	Slot      uint64
}

// Client submits signed memos to the external chain and reports which
// cluster it targets.
type Client interface {
	SubmitMemo(ctx context.Context, memo []byte, sigHex, pubKeyHex string) (*Receipt, error)
	Cluster() string
}

// RPCClient talks JSON-RPC 2.0 to a memo attestation endpoint.
type RPCClient struct {
	endpoint   string
	cluster    string
	httpClient *http.Client
}

// NewRPCClient creates a client for the given endpoint and cluster name.
// A nil httpClient gets a 30s timeout default; confirmation on public
// clusters routinely takes several seconds.
func NewRPCClient(endpoint, cluster string, httpClient *http.Client) *RPCClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &RPCClient{
		endpoint:   endpoint,
		cluster:    cluster,
		httpClient: httpClient,
	}
}

func (c *RPCClient) Cluster() string { return c.cluster }

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type submitParams struct {
	Memo      string `json:"memo"` // base64
	Signature string `json:"signature"`
	PublicKey string `json:"public_key"`
}

type rpcResponse struct {
	Result *struct {
		Signature string `json:"signature"`
		Slot      uint64 `json:"slot"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// SubmitMemo posts the memo and blocks until the endpoint reports the
// transaction confirmed.
func (c *RPCClient) SubmitMemo(ctx context.Context, memo []byte, sigHex, pubKeyHex string) (*Receipt, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "memo.submit",
		Params: submitParams{
			Memo:      base64.StdEncoding.EncodeToString(memo),
			Signature: sigHex,
			PublicKey: pubKeyHex,
		},
	})
	if err != nil {
		return nil, &contracts.SubmissionError{Stage: "encode", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &contracts.SubmissionError{Stage: "request", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &contracts.SubmissionError{Stage: "transport", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &contracts.SubmissionError{Stage: "transport", Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &contracts.SubmissionError{
			Stage: "transport",
			Err:   fmt.Errorf("rpc http status %d", resp.StatusCode),
		}
	}

	var out rpcResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &contracts.SubmissionError{Stage: "decode", Err: err}
	}
	if out.Error != nil {
		return nil, &contracts.SubmissionError{
			Stage: "chain",
			Err:   fmt.Errorf("rpc error %d: %s", out.Error.Code, out.Error.Message),
		}
	}
	if out.Result == nil || out.Result.Signature == "" {
		return nil, &contracts.SubmissionError{
			Stage: "decode",
			Err:   fmt.Errorf("rpc response missing result"),
		}
	}

	return &Receipt{
		Signature: out.Result.Signature,
		Slot:      out.Result.Slot,
	}, nil
}
