// Package stardock implements the services offered at the Celestial
// Bazaar: ship maintenance, banking, and the Rusty Nebula cantina.
package stardock

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"github.com/example/startrader/internal/player"
)

// Service actions.
const (
	ActionRepairHull     = "REPAIR_HULL"
	ActionUpgradeShields = "UPGRADE_SHIELDS"
	ActionExpandCargo    = "EXPAND_CARGO"
	ActionBankDeposit    = "BANK_DEPOSIT"
	ActionBankWithdraw   = "BANK_WITHDRAW"
	ActionBankBalance    = "BANK_BALANCE"
	ActionRustyRumor     = "RUSTY_RUMOR"
	ActionRustyGamble    = "RUSTY_GAMBLE"
	ActionRustyDrinks    = "RUSTY_DRINKS"
	ActionMarketBrowse   = "MARKET_BROWSE"
	ActionTechBrowse     = "TECH_BROWSE"
)

// Service pricing.
const (
	hullRepairCost   = 150
	hullRepairAmount = 10
	maxHull          = 100

	shieldUpgradeCost   = 500
	shieldUpgradeAmount = 5

	cargoExpansionCost   = 5000
	cargoExpansionAmount = 5

	gambleWinChance     = 50 // win on a 1-100 roll of at most this
	gambleWinMultiplier = 2

	drinkCost = 10
)

var rumors = []string{
	"A rogue AI ship was spotted near sector 12. It likes to hack nav-computers.",
	"A hidden wormhole near sector 17 took a scout ship. Didn't bring it back.",
	"Corporate transport vanished near the rim. Pirates or slavers.",
	"A planet with insane organic production is stirring corporate wars.",
	"Some sectors aren't what they seem... especially the uncharted ones.",
	"Word is there's a cache of military-grade equipment in the outer sectors.",
	"Fuel prices are about to spike. Corporate fleet movements detected.",
	"A derelict station was found drifting. Nobody aboard. Nobody.",
	"Black market ore has been flooding sector 45. Someone's mining illegally.",
	"The banking guild is watching transactions over 100k credits closely.",
	"A pirate lord is offering bounties for corporate ships. Big money.",
	"Experimental jump drives have been stolen from Tech Lab storage.",
	"Some trader made 50k credits in one run. Either genius or lucky.",
	"Port authorities in sector 88 are suspiciously lax with inspections.",
	"A ghost ship keeps appearing on scanners but vanishes when approached.",
}

var drinks = []string{
	"Pan-Galactic Gargle Blaster",
	"Sirius Cybertonic",
	"Nebula Fizz",
	"Void Whiskey",
	"Asteroid Ale",
}

// Result is the outcome of one service action.
type Result struct {
	Success bool          `json:"success"`
	Message string        `json:"message"`
	Lines   []string      `json:"lines"`
	Player  *player.State `json:"player_state"`
}

func result(success bool, message string, lines []string, st *player.State) Result {
	if lines == nil {
		lines = []string{}
	}
	return Result{Success: success, Message: message, Lines: lines, Player: st}
}

// Processor runs service transactions. It has no state of its own beyond
// the random source; the player record is the only thing it mutates.
type Processor struct {
	rng *rand.Rand
}

// New creates a processor with the given random source.
func New(rng *rand.Rand) *Processor {
	return &Processor{rng: rng}
}

// Process validates and applies one service action against the player
// state. Every action checks its own preconditions first; failures never
// mutate. Unknown actions fail with the full catalog.
func (p *Processor) Process(action string, amount int, st *player.State) Result {
	switch action {

	case ActionRepairHull:
		if st.Hull >= maxHull {
			return result(false, "Hull integrity at maximum. No repairs needed.", nil, st)
		}
		if st.Credits < hullRepairCost {
			return result(false,
				fmt.Sprintf("Not enough credits. Hull repair costs %d credits.", hullRepairCost), nil, st)
		}
		before := st.Hull
		st.Credits -= hullRepairCost
		st.Hull += hullRepairAmount
		if st.Hull > maxHull {
			st.Hull = maxHull
		}
		return result(true,
			fmt.Sprintf("Hull repaired +%d%%. Integrity now at %d%%.", st.Hull-before, st.Hull),
			[]string{
				"Nano-welders seal the breaches with surgical precision.",
				fmt.Sprintf("Cost: %d credits.", hullRepairCost),
			}, st)

	case ActionUpgradeShields:
		if st.Credits < shieldUpgradeCost {
			return result(false,
				fmt.Sprintf("Insufficient credits. Shield upgrade costs %d credits.", shieldUpgradeCost), nil, st)
		}
		st.Credits -= shieldUpgradeCost
		st.Shields += shieldUpgradeAmount
		return result(true,
			fmt.Sprintf("Shield capacity increased by %d. Total: %d.", shieldUpgradeAmount, st.Shields),
			[]string{
				"Capacitors hum as the new shield emitters come online.",
				fmt.Sprintf("Cost: %d credits.", shieldUpgradeCost),
			}, st)

	case ActionExpandCargo:
		if st.Credits < cargoExpansionCost {
			return result(false,
				fmt.Sprintf("Not enough credits. Cargo expansion costs %d credits.", cargoExpansionCost), nil, st)
		}
		st.Credits -= cargoExpansionCost
		st.Holds += cargoExpansionAmount
		return result(true,
			fmt.Sprintf("Cargo holds expanded by %d. Total: %d.", cargoExpansionAmount, st.Holds),
			[]string{
				"Engineering crews install modular storage units.",
				"Your ship's mass increases slightly but the extra space is worth it.",
				fmt.Sprintf("Cost: %d credits.", cargoExpansionCost),
			}, st)

	case ActionBankDeposit:
		if amount <= 0 {
			return result(false, "Invalid deposit amount. Must be greater than 0.", nil, st)
		}
		if st.Credits < amount {
			return result(false,
				fmt.Sprintf("Insufficient credits. You have %d credits available.", st.Credits), nil, st)
		}
		st.Credits -= amount
		st.Bank += amount
		return result(true,
			fmt.Sprintf("Deposited %s credits.", formatCredits(amount)),
			[]string{
				fmt.Sprintf("Bank balance: %s credits", formatCredits(st.Bank)),
				fmt.Sprintf("Cash on hand: %s credits", formatCredits(st.Credits)),
				"Funds are protected by military-grade encryption.",
			}, st)

	case ActionBankWithdraw:
		if amount <= 0 {
			return result(false, "Invalid withdrawal amount. Must be greater than 0.", nil, st)
		}
		if st.Bank < amount {
			return result(false,
				fmt.Sprintf("Insufficient bank balance. You have %s credits in the bank.", formatCredits(st.Bank)), nil, st)
		}
		st.Bank -= amount
		st.Credits += amount
		return result(true,
			fmt.Sprintf("Withdrew %s credits.", formatCredits(amount)),
			[]string{
				fmt.Sprintf("Bank balance: %s credits", formatCredits(st.Bank)),
				fmt.Sprintf("Cash on hand: %s credits", formatCredits(st.Credits)),
				"Credits transferred to your ship's vault.",
			}, st)

	case ActionBankBalance:
		return result(true, "Account summary:",
			[]string{
				fmt.Sprintf("Bank balance: %s credits", formatCredits(st.Bank)),
				fmt.Sprintf("Cash on hand: %s credits", formatCredits(st.Credits)),
				fmt.Sprintf("Total assets: %s credits", formatCredits(st.Bank+st.Credits)),
			}, st)

	case ActionRustyRumor:
		rumor := rumors[p.rng.Intn(len(rumors))]
		return result(true, "A hooded figure leans close and whispers...",
			[]string{
				"",
				fmt.Sprintf("%q", rumor),
				"",
				"They disappear back into the smoky crowd.",
			}, st)

	case ActionRustyGamble:
		if amount <= 0 {
			return result(false, "Invalid bet amount. Must be greater than 0.", nil, st)
		}
		if st.Credits < amount {
			return result(false,
				fmt.Sprintf("Not enough credits to gamble. You have %d credits.", st.Credits), nil, st)
		}
		st.Credits -= amount
		roll := 1 + p.rng.Intn(100)
		if roll <= gambleWinChance {
			winnings := amount * gambleWinMultiplier
			st.Credits += winnings
			return result(true,
				fmt.Sprintf("YOU WON! The house pays out %s credits.", formatCredits(winnings)),
				[]string{
					fmt.Sprintf("You bet %s and won %s credits!", formatCredits(amount), formatCredits(winnings-amount)),
					"The dealer nods with grudging respect.",
					fmt.Sprintf("Credits: %s", formatCredits(st.Credits)),
				}, st)
		}
		return result(false,
			fmt.Sprintf("You lost. The house takes your %s credits.", formatCredits(amount)),
			[]string{
				"The cards weren't in your favor this time.",
				"The dealer smirks and slides your chips away.",
				fmt.Sprintf("Credits: %s", formatCredits(st.Credits)),
			}, st)

	case ActionRustyDrinks:
		if st.Credits < drinkCost {
			return result(false, "Not enough credits for a drink.", nil, st)
		}
		st.Credits -= drinkCost
		drink := drinks[p.rng.Intn(len(drinks))]
		return result(true,
			fmt.Sprintf("You order a %s.", drink),
			[]string{
				"The bartender slides it across the counter.",
				"It tastes like regret and stardust.",
				fmt.Sprintf("Cost: %d credits", drinkCost),
			}, st)

	case ActionMarketBrowse:
		return result(true, "Market Promenade coming soon!",
			[]string{
				"Exotic goods, rare artifacts, and black market tech.",
				"Under construction. Check back later.",
			}, st)

	case ActionTechBrowse:
		return result(true, "Tech Lab experimental mods coming soon!",
			[]string{
				"Jump drive enhancers, cloaking devices, weapon systems.",
				"Currently in development. Stand by.",
			}, st)
	}

	return result(false,
		fmt.Sprintf("Unknown Stardock action: '%s'", action),
		[]string{
			"Available actions:",
			"REPAIR_HULL, UPGRADE_SHIELDS, EXPAND_CARGO",
			"BANK_DEPOSIT, BANK_WITHDRAW, BANK_BALANCE",
			"RUSTY_RUMOR, RUSTY_GAMBLE, RUSTY_DRINKS",
		}, st)
}

// formatCredits renders a credit amount with thousands separators, the
// way the bank and the casino display money.
func formatCredits(n int) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	digits := strconv.Itoa(n)
	if len(digits) <= 3 {
		return sign + digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}

// Intro is the docking banner text.
func Intro() string {
	return "Welcome to the Celestial Bazaar.\nPremium services for discerning captains."
}

// ServiceMenu lists every service with its price, grouped by venue.
func ServiceMenu() []string {
	return []string{
		"-- Corporate Concourse --",
		fmt.Sprintf("REPAIR_HULL - Repair hull damage (%d credits)", hullRepairCost),
		fmt.Sprintf("UPGRADE_SHIELDS - Increase shield capacity (%d credits)", shieldUpgradeCost),
		fmt.Sprintf("EXPAND_CARGO - Add cargo holds (%d credits)", cargoExpansionCost),
		"-- Interstellar Bank --",
		"BANK_DEPOSIT <amount> - Deposit credits",
		"BANK_WITHDRAW <amount> - Withdraw credits",
		"BANK_BALANCE - Check account balance",
		"-- Rusty Nebula --",
		"RUSTY_RUMOR - Hear rumors (free)",
		"RUSTY_GAMBLE <amount> - Gamble credits",
		fmt.Sprintf("RUSTY_DRINKS - Buy a drink (%d credits)", drinkCost),
		"-- Market Promenade --",
		"MARKET_BROWSE - Browse exotic goods (coming soon)",
		"-- Tech Lab --",
		"TECH_BROWSE - View experimental mods (coming soon)",
		"-- 0 or LEAVE to undock --",
	}
}

// Rumors exposes the rumor table for tests and tooling.
func Rumors() []string {
	return append([]string(nil), rumors...)
}
