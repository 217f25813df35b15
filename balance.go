package verda

import "context"

const balanceEndpoint = "/balance"

// Balance is the account balance.
type Balance struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// BalanceService reads the account balance.
type BalanceService struct {
	client *HTTPClient
}

// Get returns the current balance.
func (s *BalanceService) Get(ctx context.Context) (*Balance, error) {
	resp, err := s.client.Get(ctx, balanceEndpoint)
	if err != nil {
		return nil, err
	}
	var b Balance
	if err := decodeResponse(resp, &b); err != nil {
		return nil, err
	}
	return &b, nil
}
