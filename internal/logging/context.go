package logging

// SignalContext derives a logger scoped to one signal execution
func SignalContext(base *Logger, source, symbol, action string) *Logger {
	return base.WithFields(map[string]interface{}{
		"source": source,
		"symbol": symbol,
		"action": action,
	}).WithComponent("signal")
}

// DecisionContext derives a logger scoped to one combine round
func DecisionContext(base *Logger, symbol, timeframe string) *Logger {
	return base.WithFields(map[string]interface{}{
		"symbol":    symbol,
		"timeframe": timeframe,
	}).WithComponent("decision")
}

// RiskContext derives a logger scoped to one risk evaluation
func RiskContext(base *Logger, symbol, side string, notionalUSDT float64) *Logger {
	return base.WithFields(map[string]interface{}{
		"symbol":        symbol,
		"side":          side,
		"notional_usdt": notionalUSDT,
	}).WithComponent("risk")
}

// OrderContext derives a logger scoped to one placed order
func OrderContext(base *Logger, orderID int64, symbol, side, orderType string) *Logger {
	return base.WithFields(map[string]interface{}{
		"order_id":   orderID,
		"symbol":     symbol,
		"side":       side,
		"order_type": orderType,
	}).WithComponent("order")
}
