package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Mode is a quoting mode carried by a legacy control signal.
type Mode string

const (
	ModeFixedWidth    Mode = "FW"
	ModeMovingAverage Mode = "MA"
	ModeBasisSwap     Mode = "BSW"
	ModeVCoin         Mode = "VCOIN"
)

var modeTable = [4]Mode{ModeFixedWidth, ModeMovingAverage, ModeBasisSwap, ModeVCoin}

// Signal is a decoded legacy control signal.
type Signal struct {
	Mode   Mode
	Window int             // moving-average window, in candles
	Delta  decimal.Decimal // fractional quote half-width
}

// DecodeSignalPrice unpacks the historical digit-encoded control protocol: a
// mode, window and delta smuggled into the decimal digits of an order price.
// With scaled = price * 1000 as an integer,
//
//	delta  = (scaled % 10) / 10000
//	window = (scaled / 10) % 100
//	mode   = modeTable[(scaled / 1000) % 10 % 4]
//
// This is decoded once here at the boundary; nothing downstream ever looks at
// the raw digits again.
func DecodeSignalPrice(price decimal.Decimal) (Signal, error) {
	scaledDec := price.Mul(decimal.NewFromInt(1000))
	if !scaledDec.Equal(scaledDec.Truncate(0)) {
		return Signal{}, fmt.Errorf("signal price %s has more than 3 decimal places", price)
	}
	scaled := scaledDec.IntPart()
	if scaled <= 0 {
		return Signal{}, fmt.Errorf("signal price %s is not positive", price)
	}

	return Signal{
		Mode:   modeTable[(scaled/1000)%10%4],
		Window: int((scaled / 10) % 100),
		Delta:  decimal.NewFromInt(scaled % 10).Div(decimal.NewFromInt(10000)),
	}, nil
}

// PolicyFromSignal turns a decoded signal into a pricing policy.
func PolicyFromSignal(sig Signal, alg string, priceResolution int32) (PricingPolicy, error) {
	return NewPolicy(string(sig.Mode), sig.Window, alg, sig.Delta, priceResolution)
}
