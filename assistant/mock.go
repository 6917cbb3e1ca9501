package assistant

import (
	"context"
	"fmt"
)

// MockClient answers locally without a remote service. Useful in dev mode.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (m *MockClient) SendMessage(ctx context.Context, text string) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return StructuredResponse(fmt.Sprintf("I received your message: %q. Connect an assistant service for real answers.", text)), nil
}
