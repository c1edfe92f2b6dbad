package market

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/scranton/coretrader/internal/xerrors"
)

// SecurityType classifies the tradable instrument kind. Values must fit the
// 2-digit (0-99) packed field.
type SecurityType int

// Recognized security types.
const (
	SecurityBase SecurityType = iota
	SecurityEquity
	SecurityOption
	SecurityForex
	SecurityCfd
)

// OptionRight distinguishes a put from a call. Must fit the 1-digit (0-1)
// packed field.
type OptionRight int

// Put and Call are the only valid option rights.
const (
	Put OptionRight = iota
	Call
)

// OptionStyle distinguishes exercise style. Must fit the 1-digit (0-9)
// packed field.
type OptionStyle int

// American and European are the recognized option styles.
const (
	American OptionStyle = iota
	European
)

// oaEpoch is the OLE Automation date epoch (1899-12-30), used to pack the
// identifier's date component as a day count, exactly as the source
// corpus's wire format requires (spec §9: byte-compatible packing).
var oaEpoch = time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC)

// Packed field widths, decimal (base-10), per spec §3.
const (
	widthPutCall        = 10
	widthDate           = 100000
	widthOptionStyle    = 10
	widthStrikeMantissa = 1000000
	widthStrikeScale    = 100
	widthMarketCode     = 1000
	widthSecurityType   = 100
)

// Packed field offsets, derived by cumulative product of all narrower
// (less significant) field widths, per spec §4.A's "repeated
// (value / offset) mod width" decode rule.
const (
	offsetSecurityType   = 1
	offsetMarketCode     = offsetSecurityType * widthSecurityType
	offsetStrikeScale    = offsetMarketCode * widthMarketCode
	offsetStrikeMantissa = offsetStrikeScale * widthStrikeScale
	offsetOptionStyle    = offsetStrikeMantissa * widthStrikeMantissa
	offsetDate           = offsetOptionStyle * widthOptionStyle
	offsetPutCall        = offsetDate * widthDate
)

// defaultStrikeScale anchors strike normalization per spec §3/§4.A.
const defaultStrikeScale = 4

// base36FieldWidth is the zero-padded, right-justified width of the
// serialized base-36 properties field: 12 (max symbol) + 1 (space) + 27
// = 40, matching spec §6's "40-character total" framing. Padding is on
// the left (zeros preserve the numeric value); "zero-padded on the right"
// in spec §6 describes the field's right-justification within the fixed
// 40-character record, not left-to-right digit order.
const base36FieldWidth = 27

// SecurityIdentifier is the immutable, packed instrument identity described
// in spec §3/§4.A.
type SecurityIdentifier struct {
	symbol     string
	properties uint64
}

// Empty is the zero-value identifier ("", 0).
var Empty = SecurityIdentifier{}

// validateSymbol enforces the ≤12 char uppercase-alnum symbol constraint.
func validateSymbol(symbol string) error {
	if len(symbol) == 0 || len(symbol) > 12 {
		return xerrors.New(xerrors.KindOutOfRange, "market.validateSymbol",
			"symbol must be 1-12 characters")
	}
	for _, r := range symbol {
		isUpper := r >= 'A' && r <= 'Z'
		isDigit := r >= '0' && r <= '9'
		if !isUpper && !isDigit {
			return xerrors.New(xerrors.KindFormat, "market.validateSymbol",
				"symbol must be uppercase alphanumeric")
		}
	}
	return nil
}

// normalizeStrike converts a strike price to (mantissa, scale) such that
// mantissa is a positive integer with no trailing factor-of-ten left to
// strip, anchored to defaultStrikeScale. Uses decimal.Decimal rather than
// float64 so the mantissa/scale split is exact, not an epsilon-rounded
// approximation of the input strike.
func normalizeStrike(strike float64) (mantissa int, scale int, err error) {
	if strike <= 0 {
		return 0, 0, xerrors.New(xerrors.KindOutOfRange, "market.normalizeStrike", "strike must be positive")
	}

	d := decimal.NewFromFloat(strike).Shift(defaultStrikeScale).Round(0)
	m := d.BigInt().Int64()
	scale = defaultStrikeScale

	ten := int64(10)
	for m%ten == 0 && scale > 0 {
		m /= ten
		scale--
	}

	if m <= 0 || m >= widthStrikeMantissa {
		return 0, 0, xerrors.New(xerrors.KindOutOfRange, "market.normalizeStrike",
			"strike mantissa out of range after normalization")
	}

	return int(m), scale, nil
}

// pack assembles the properties field from its components.
func pack(securityType SecurityType, marketCode int, strikeScale, strikeMantissa int,
	style OptionStyle, dateDays int, right OptionRight) (uint64, error) {
	if int(securityType) < 0 || int(securityType) >= widthSecurityType {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "security type out of range")
	}
	if marketCode < 0 || marketCode >= widthMarketCode {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "market code out of range")
	}
	if strikeScale < 0 || strikeScale >= widthStrikeScale {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "strike scale out of range")
	}
	if strikeMantissa < 0 || strikeMantissa >= widthStrikeMantissa {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "strike mantissa out of range")
	}
	if int(style) < 0 || int(style) >= widthOptionStyle {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "option style out of range")
	}
	if dateDays < 0 || dateDays >= widthDate {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "date out of range")
	}
	if int(right) < 0 || int(right) >= widthPutCall {
		return 0, xerrors.New(xerrors.KindOutOfRange, "market.pack", "option right out of range")
	}

	v := uint64(securityType) * offsetSecurityType
	v += uint64(marketCode) * offsetMarketCode
	v += uint64(strikeScale) * offsetStrikeScale
	v += uint64(strikeMantissa) * offsetStrikeMantissa
	v += uint64(style) * offsetOptionStyle
	v += uint64(dateDays) * offsetDate
	v += uint64(right) * offsetPutCall
	return v, nil
}

func unpack(v uint64) (securityType SecurityType, marketCode, strikeScale, strikeMantissa int,
	style OptionStyle, dateDays int, right OptionRight) {
	securityType = SecurityType((v / offsetSecurityType) % widthSecurityType)
	marketCode = int((v / offsetMarketCode) % widthMarketCode)
	strikeScale = int((v / offsetStrikeScale) % widthStrikeScale)
	strikeMantissa = int((v / offsetStrikeMantissa) % widthStrikeMantissa)
	style = OptionStyle((v / offsetOptionStyle) % widthOptionStyle)
	dateDays = int((v / offsetDate) % widthDate)
	right = OptionRight((v / offsetPutCall) % widthPutCall)
	return
}

func dateToDays(t time.Time) int {
	return int(t.UTC().Truncate(24*time.Hour).Sub(oaEpoch).Hours() / 24)
}

func daysToDate(days int) time.Time {
	return oaEpoch.Add(time.Duration(days) * 24 * time.Hour)
}

// generate is the shared constructor used by the Generate* family below.
func generate(symbol string, securityType SecurityType, market string,
	date time.Time, strike float64, right OptionRight, style OptionStyle) (SecurityIdentifier, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if err := validateSymbol(symbol); err != nil {
		return Empty, err
	}

	marketCode, ok := Default.Encode(market)
	if !ok {
		return Empty, xerrors.New(xerrors.KindOutOfRange, "market.generate", "unknown market: "+market)
	}

	var mantissa, scale, dateDays int
	var err error
	if securityType == SecurityOption {
		mantissa, scale, err = normalizeStrike(strike)
		if err != nil {
			return Empty, err
		}
		dateDays = dateToDays(date)
	} else if securityType == SecurityEquity {
		dateDays = dateToDays(date)
	}

	props, err := pack(securityType, marketCode, scale, mantissa, style, dateDays, right)
	if err != nil {
		return Empty, err
	}
	return SecurityIdentifier{symbol: symbol, properties: props}, nil
}

// GenerateEquity builds an equity identifier.
func GenerateEquity(date time.Time, symbol, market string) (SecurityIdentifier, error) {
	return generate(symbol, SecurityEquity, market, date, 0, Put, American)
}

// GenerateOption builds an option identifier; symbol carries the underlying.
func GenerateOption(expiry time.Time, underlying, market string, strike float64,
	right OptionRight, style OptionStyle) (SecurityIdentifier, error) {
	return generate(underlying, SecurityOption, market, expiry, strike, right, style)
}

// GenerateForex builds a forex identifier.
func GenerateForex(symbol, market string) (SecurityIdentifier, error) {
	return generate(symbol, SecurityForex, market, time.Time{}, 0, Put, American)
}

// GenerateCfd builds a CFD identifier.
func GenerateCfd(symbol, market string) (SecurityIdentifier, error) {
	return generate(symbol, SecurityCfd, market, time.Time{}, 0, Put, American)
}

// GenerateBase builds a base-data identifier for custom/alternative data.
func GenerateBase(symbol, market string) (SecurityIdentifier, error) {
	return generate(symbol, SecurityBase, market, time.Time{}, 0, Put, American)
}

// Symbol returns the packed symbol string.
func (s SecurityIdentifier) Symbol() string { return s.symbol }

// SecurityType returns the packed security type.
func (s SecurityIdentifier) SecurityType() SecurityType {
	t, _, _, _, _, _, _ := unpack(s.properties)
	return t
}

// Market returns the lowercase market name.
func (s SecurityIdentifier) Market() (string, error) {
	_, code, _, _, _, _, _ := unpack(s.properties)
	name, ok := Default.Decode(code)
	if !ok {
		return "", xerrors.New(xerrors.KindOutOfRange, "market.Market", "unregistered market code")
	}
	return name, nil
}

// Date returns the packed date for Equity/Option identifiers; fails for any
// other security type.
func (s SecurityIdentifier) Date() (time.Time, error) {
	t := s.SecurityType()
	if t != SecurityEquity && t != SecurityOption {
		return time.Time{}, xerrors.New(xerrors.KindInvalidOperation, "market.Date",
			"date is not applicable to this security type")
	}
	_, _, _, _, _, days, _ := unpack(s.properties)
	return daysToDate(days), nil
}

// StrikePrice returns the packed strike price; fails for non-option
// identifiers.
func (s SecurityIdentifier) StrikePrice() (float64, error) {
	if s.SecurityType() != SecurityOption {
		return 0, xerrors.New(xerrors.KindInvalidOperation, "market.StrikePrice",
			"strike price is only applicable to options")
	}
	_, _, scale, mantissa, _, _, _ := unpack(s.properties)
	price, _ := decimal.New(int64(mantissa), 0).Shift(int32(-scale)).Float64()
	return price, nil
}

// OptionRight returns the packed option right; fails for non-option
// identifiers.
func (s SecurityIdentifier) OptionRight() (OptionRight, error) {
	if s.SecurityType() != SecurityOption {
		return 0, xerrors.New(xerrors.KindInvalidOperation, "market.OptionRight",
			"option right is only applicable to options")
	}
	_, _, _, _, _, _, right := unpack(s.properties)
	return right, nil
}

// OptionStyle returns the packed option style; fails for non-option
// identifiers.
func (s SecurityIdentifier) OptionStyle() (OptionStyle, error) {
	if s.SecurityType() != SecurityOption {
		return 0, xerrors.New(xerrors.KindInvalidOperation, "market.OptionStyle",
			"option style is only applicable to options")
	}
	_, _, _, _, style, _, _ := unpack(s.properties)
	return style, nil
}

// String serializes the identifier as "<SYMBOL> <BASE36>", base-36 component
// left-padded with zeros to base36FieldWidth.
func (s SecurityIdentifier) String() string {
	b36 := strings.ToUpper(strconv.FormatUint(s.properties, 36))
	if len(b36) < base36FieldWidth {
		b36 = strings.Repeat("0", base36FieldWidth-len(b36)) + b36
	}
	return s.symbol + " " + b36
}

// Parse decodes a SecurityIdentifier from its serialized string form.
func Parse(s string) (SecurityIdentifier, error) {
	parts := strings.SplitN(s, " ", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Empty, xerrors.New(xerrors.KindFormat, "market.Parse",
			"expected \"<SYMBOL> <BASE36>\"")
	}

	symbol := strings.ToUpper(parts[0])
	if err := validateSymbol(symbol); err != nil {
		return Empty, err
	}

	props, err := strconv.ParseUint(strings.ToLower(parts[1]), 36, 64)
	if err != nil {
		return Empty, xerrors.Wrap(xerrors.KindFormat, "market.Parse", "invalid base36 properties field", err)
	}

	return SecurityIdentifier{symbol: symbol, properties: props}, nil
}

// Equal reports whether two identifiers are identical.
func (s SecurityIdentifier) Equal(other SecurityIdentifier) bool {
	return s.symbol == other.symbol && s.properties == other.properties
}
