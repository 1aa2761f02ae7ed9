package betfair

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	DefaultRestURL = "https://api.betfair.com/exchange/betting/rest/v1.0"

	listMarketBookPath = "/listMarketBook/"

	maxMarketsPerRequest = 40
	readTimeout          = 60 * time.Second
	requestTimeout       = 10 * time.Second
	heartbeatMs          = 5000
)

// Venue market status strings.
const (
	StatusOpen      = "OPEN"
	StatusSuspended = "SUSPENDED"
	StatusClosed    = "CLOSED"
)

// MarketBook is the subset of a listMarketBook entry (or a stream market image)
// the adapter reads.
type MarketBook struct {
	MarketID string   `json:"marketId"`
	Status   string   `json:"status"`
	InPlay   *bool    `json:"inplay,omitempty"`
	Runners  []Runner `json:"runners"`
}

// Runner is one selection of a MarketBook.
type Runner struct {
	SelectionID int64          `json:"selectionId"`
	Ex          ExchangePrices `json:"ex"`
}

// ExchangePrices holds the ladders; index 0 is best.
type ExchangePrices struct {
	AvailableToBack []PriceLevel `json:"availableToBack"`
	AvailableToLay  []PriceLevel `json:"availableToLay"`
}

// PriceLevel is one ladder rung. Decimal parses JSON numbers without float rounding.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

type priceProjection struct {
	PriceData []string `json:"priceData"`
}

// listMarketBookRequest is the REST request body.
type listMarketBookRequest struct {
	MarketIDs       []string        `json:"marketIds"`
	PriceProjection priceProjection `json:"priceProjection"`
}

// apiError is the body the REST endpoint returns on failure.
type apiError struct {
	Detail struct {
		APINGException struct {
			ErrorCode string `json:"errorCode"`
		} `json:"APINGException"`
	} `json:"detail"`
	FaultCode string `json:"faultcode"`
}

type authenticationRequest struct {
	Op      string `json:"op"`
	ID      int64  `json:"id"`
	AppKey  string `json:"appKey"`
	Session string `json:"session"`
}

type marketFilter struct {
	MarketIDs []string `json:"marketIds"`
}

type subscriptionRequest struct {
	Op           string       `json:"op"`
	ID           int64        `json:"id"`
	MarketFilter marketFilter `json:"marketFilter"`
	HeartbeatMs  int          `json:"heartbeatMs"`
}

// streamMessage is any frame received from the stream endpoint.
// "mcm" frames carry full market images in MC; "status" frames report errors.
type streamMessage struct {
	Op           string       `json:"op"`
	ID           int64        `json:"id,omitempty"`
	PublishTime  int64        `json:"pt,omitempty"` // unix millis
	MC           []MarketBook `json:"mc,omitempty"`
	StatusCode   string       `json:"statusCode,omitempty"`
	ErrorCode    string       `json:"errorCode,omitempty"`
	ErrorMessage string       `json:"errorMessage,omitempty"`
	CT           string       `json:"ct,omitempty"` // HEARTBEAT, SUB_IMAGE, ...
}
