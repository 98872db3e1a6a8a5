package bridge

// Market-price order type of the Kiwoom OpenAPI ("시장가").
const marketPriceType = "03"

// orderRequest is the body of POST /v1/orders.
type orderRequest struct {
	Account   string `json:"account"`
	StockCode string `json:"stock_code"`
	Quantity  int64  `json:"quantity"`
	Side      string `json:"side"` // "buy" or "sell"
	PriceType string `json:"price_type"`
}

// orderResponse echoes the OpenAPI order call result. OrderNumber carries the
// broker's reply verbatim: an order number on success, an error code
// otherwise.
type orderResponse struct {
	OrderNumber string `json:"order_number"`
}

// quoteResponse is the body of GET /v1/quotes/{code}.
type quoteResponse struct {
	StockCode string  `json:"stock_code"`
	Price     float64 `json:"price"`
}

// orderStatusResponse is the body of GET /v1/orders/{id}.
type orderStatusResponse struct {
	OrderNumber string  `json:"order_number"`
	StockCode   string  `json:"stock_code"`
	OrderedQty  int64   `json:"ordered_qty"`
	FilledQty   int64   `json:"filled_qty"`
	FilledPrice float64 `json:"filled_price"`
}

// wsCommand is a client-to-bridge control message.
type wsCommand struct {
	Op         string   `json:"op"` // "register_conditions" or "register_quotes"
	Conditions []string `json:"conditions,omitempty"`
	StockCodes []string `json:"stock_codes,omitempty"`
}

// wsEvent is a bridge-to-client event. Type selects which fields are set:
//
//	"connect"   — Connected
//	"tick"      — StockCode, Price, Ts (Unix milliseconds)
//	"condition" — StockCode, Event ("enter" or "leave"), Condition
type wsEvent struct {
	Type      string  `json:"type"`
	Connected bool    `json:"connected"`
	StockCode string  `json:"stock_code"`
	Price     float64 `json:"price"`
	Ts        int64   `json:"ts"`
	Event     string  `json:"event"`
	Condition string  `json:"condition"`
}
