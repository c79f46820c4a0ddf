package galaxy

import (
	"fmt"

	"github.com/example/startrader/internal/player"
)

// Trade actions.
const (
	TradeInfo = "INFO"
	TradeBuy  = "BUY"
	TradeSell = "SELL"
)

// TradeResult is returned for every trade attempt, success or failure.
// It always carries the player's full current state and, when a port is
// present, the full port snapshot, so the client can resynchronize its
// view regardless of outcome.
type TradeResult struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Player  *player.State `json:"player_state"`
	Port    *PortSnapshot `json:"port"`
}

func tradeFailure(message string, st *player.State, port *Port) TradeResult {
	result := TradeResult{Message: message, Player: st}
	if port != nil {
		result.Port = port.Snapshot()
	}
	return result
}

// Trade runs one INFO, BUY or SELL operation for a player against the
// port in the given sector. Failures never mutate state. The whole lot is
// settled at the pre-trade price; stock pressure shifts afterwards so the
// next quote self-corrects.
func Trade(sector *Sector, st *player.State, action, commodity string, amount int) TradeResult {
	if sector == nil || sector.Port == nil {
		return tradeFailure("No port in this sector.", st, nil)
	}
	port := sector.Port

	if !port.Trades(commodity) {
		return tradeFailure(fmt.Sprintf("Port does not trade '%s'.", commodity), st, port)
	}
	if amount <= 0 {
		return tradeFailure("Amount must be positive.", st, port)
	}

	switch action {
	case TradeInfo:
		return TradeResult{
			Success: true,
			Message: "Port info.",
			Player:  st,
			Port:    port.Snapshot(),
		}

	case TradeBuy:
		price := port.Price(commodity)
		totalCost := price * amount
		if st.UsedHolds()+amount > st.Holds {
			return tradeFailure("Not enough cargo space.", st, port)
		}
		if totalCost > st.Credits {
			return tradeFailure("Not enough credits.", st, port)
		}
		st.Credits -= totalCost
		st.Cargo[commodity] += amount
		port.adjustStock(commodity, -amount)
		return TradeResult{
			Success: true,
			Message: fmt.Sprintf("Bought %d %s for %d credits.", amount, commodity, totalCost),
			Player:  st,
			Port:    port.Snapshot(),
		}

	case TradeSell:
		if st.Cargo[commodity] < amount {
			return tradeFailure(fmt.Sprintf("Not enough %s to sell.", commodity), st, port)
		}
		price := port.Price(commodity)
		totalGain := price * amount
		st.Cargo[commodity] -= amount
		st.Credits += totalGain
		port.adjustStock(commodity, amount)
		return TradeResult{
			Success: true,
			Message: fmt.Sprintf("Sold %d %s for %d credits.", amount, commodity, totalGain),
			Player:  st,
			Port:    port.Snapshot(),
		}
	}

	return tradeFailure(fmt.Sprintf("Unknown trade action '%s'.", action), st, port)
}
