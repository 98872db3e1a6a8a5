package domain

// CommandType identifies which broker operation a Command describes.
type CommandType string

const (
	CmdBuy                CommandType = "buy"
	CmdSell               CommandType = "sell"
	CmdCurrentQuote       CommandType = "current_quote"
	CmdLiveQuote          CommandType = "live_quote"
	CmdConditions         CommandType = "conditions"
	CmdOrderStatus        CommandType = "order_status"
	CmdRegisterConditions CommandType = "register_conditions"
	CmdRegisterLiveQuotes CommandType = "register_live_quotes"
	CmdCancelSell         CommandType = "cancel_sell"
)

// Command is a tagged request describing one broker operation. Only the
// fields relevant to the Type are set. A Command is immutable once submitted
// to the bus.
type Command struct {
	Type CommandType

	// Account is the trading account number (CmdBuy, CmdSell).
	Account string

	// StockCode is the instrument code (CmdBuy, CmdSell, CmdCurrentQuote,
	// CmdLiveQuote).
	StockCode string

	// Quantity is the order size in shares (CmdBuy, CmdSell).
	Quantity int64

	// OrderID identifies an existing order (CmdOrderStatus, CmdCancelSell).
	OrderID string

	// Conditions is the screening-condition name list (CmdRegisterConditions).
	Conditions []string

	// StockCodes is the batch of codes to subscribe (CmdRegisterLiveQuotes).
	StockCodes []string
}

// Reply carries the successful result of a Command. Which field is populated
// depends on the command type; registration and cancel commands produce an
// empty Reply.
type Reply struct {
	// OrderID is the broker-assigned order number (CmdBuy, CmdSell).
	OrderID string

	// Price is a quote in the account currency (CmdCurrentQuote,
	// CmdLiveQuote).
	Price float64

	// StockCodes is the currently matched code set (CmdConditions).
	StockCodes []string

	// Status is the order history snapshot (CmdOrderStatus).
	Status OrderStatus
}
