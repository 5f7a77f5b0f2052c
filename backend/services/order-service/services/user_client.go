package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/GHOST-031/agrova-sub001/backend/services/common/logger"
	"github.com/GHOST-031/agrova-sub001/backend/services/order-service/models"
	"github.com/google/uuid"
)

// BuyerDirectory resolves buyer profiles for responses.
type BuyerDirectory interface {
	GetBuyer(ctx context.Context, buyerID uuid.UUID) (*models.BuyerSummary, error)
}

// UserClient calls user-service's internal profile endpoint.
type UserClient struct {
	baseURL string
	client  *http.Client
}

func NewUserClient(baseURL string) *UserClient {
	return &UserClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (c *UserClient) GetBuyer(ctx context.Context, buyerID uuid.UUID) (*models.BuyerSummary, error) {
	url := fmt.Sprintf("%s/users/internal/%s", c.baseURL, buyerID.String())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(logger.RequestIDHeader, logger.RequestIDFrom(ctx))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("user service returned %d", resp.StatusCode)
	}

	var buyer models.BuyerSummary
	if err := json.NewDecoder(resp.Body).Decode(&buyer); err != nil {
		return nil, err
	}
	if buyer.ID == uuid.Nil {
		buyer.ID = buyerID
	}
	return &buyer, nil
}
