package client

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dQRY/lib/query"
	"github.com/ValentinKolb/dQRY/rpc/common"
	"github.com/ValentinKolb/dQRY/rpc/serializer"
	"github.com/ValentinKolb/dQRY/rpc/transport"
)

// NewRPCQueryClient creates a new RPC query client
// The function takes a config, a transport and a serializer as parameters
// It connects the transport and returns the client
func NewRPCQueryClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IQueryClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	return &rpcQueryClient{
		rpcClientAdapter{
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}, nil
}

type rpcQueryClient struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see IQueryClient)
// --------------------------------------------------------------------------

func (c *rpcQueryClient) Execute(cache, typeName, sql string, args []any, pageSize int) (*Page, error) {
	argBytes, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	req := common.NewExecuteRequest(cache, typeName, sql, argBytes, int32(pageSize))
	return c.invokePage(req)
}

func (c *rpcQueryClient) ExecuteFields(cache, sql string, args []any, pageSize int) (*Page, error) {
	argBytes, err := encodeArgs(args)
	if err != nil {
		return nil, err
	}
	req := common.NewExecuteFieldsRequest(cache, sql, argBytes, int32(pageSize))
	return c.invokePage(req)
}

func (c *rpcQueryClient) Fetch(queryID uint64, pageSize int) (*Page, error) {
	return c.invokePage(common.NewFetchRequest(queryID, int32(pageSize)))
}

func (c *rpcQueryClient) CloseQuery(queryID uint64) (bool, error) {
	resp, err := c.roundTrip(common.NewCloseRequest(queryID))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *rpcQueryClient) ForEach(page *Page, pageSize int, fn func(item json.RawMessage) error) error {
	for page != nil {
		for _, item := range page.Items {
			if err := fn(item); err != nil {
				if !page.Last {
					if _, closeErr := c.CloseQuery(page.QueryID); closeErr != nil && !errors.Is(closeErr, query.ErrNotFound) {
						Logger.Warningf("failed to close query %d: %v", page.QueryID, closeErr)
					}
				}
				return err
			}
		}
		if page.Last {
			return nil
		}

		next, err := c.Fetch(page.QueryID, pageSize)
		if err != nil {
			return err
		}
		page = next
	}
	return nil
}

func (c *rpcQueryClient) Close() error {
	return c.transport.Close()
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// invokePage sends a request answered by a page and decodes the page
func (c *rpcQueryClient) invokePage(req *common.Message) (*Page, error) {
	resp, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}

	page := &Page{QueryID: resp.QueryID, Last: resp.Last}
	if len(resp.Items) > 0 {
		if err := json.Unmarshal(resp.Items, &page.Items); err != nil {
			return nil, fmt.Errorf("decode result items: %w", err)
		}
	}
	if len(resp.Fields) > 0 {
		if err := json.Unmarshal(resp.Fields, &page.Fields); err != nil {
			return nil, fmt.Errorf("decode field metadata: %w", err)
		}
	}
	return page, nil
}

func encodeArgs(args []any) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encode query arguments: %w", err)
	}
	return b, nil
}
