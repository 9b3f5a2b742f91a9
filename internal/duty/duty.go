package duty

// Расчёт пошлины и НДС. Чистая функция: деньги в центах, ставки в базисных
// пунктах, целочисленное деление с усечением — результат детерминированный.

type Item struct {
	Description     string
	HSCode          string
	Quantity        int32
	UnitValueCents  int64
	TotalValueCents int64
}

type Result struct {
	DutyCents      int64
	VATCents       int64
	TotalFeesCents int64
}

type PrefixRate struct {
	Prefix string
	RateBP int64
}

type TableConfig struct {
	// Declared value at or under the threshold pays VAT only.
	ExemptionThresholdCents int64

	VATRateBP         int64
	DefaultDutyRateBP int64

	// HS-code prefix rates, longest match wins.
	Rates []PrefixRate
}

func DefaultTableConfig() TableConfig {
	return TableConfig{
		ExemptionThresholdCents: 300_00,
		VATRateBP:               1600,
		DefaultDutyRateBP:       1000,
		Rates: []PrefixRate{
			{Prefix: "61", RateBP: 2000}, // apparel, knitted
			{Prefix: "62", RateBP: 2000}, // apparel, woven
			{Prefix: "64", RateBP: 2500}, // footwear
			{Prefix: "8517", RateBP: 0},  // phones: duty-free, VAT still applies
			{Prefix: "85", RateBP: 1500}, // other electronics
		},
	}
}

type Table struct {
	cfg TableConfig
}

func NewTable(cfg TableConfig) *Table {
	def := DefaultTableConfig()
	if cfg.ExemptionThresholdCents <= 0 {
		cfg.ExemptionThresholdCents = def.ExemptionThresholdCents
	}
	if cfg.VATRateBP <= 0 {
		cfg.VATRateBP = def.VATRateBP
	}
	if cfg.DefaultDutyRateBP < 0 {
		cfg.DefaultDutyRateBP = def.DefaultDutyRateBP
	}
	if len(cfg.Rates) == 0 {
		cfg.Rates = def.Rates
	}
	return &Table{cfg: cfg}
}

func DefaultTable() *Table {
	return NewTable(DefaultTableConfig())
}

// Compute returns duty, VAT and total fees for a declared value and its
// itemization. At or under the exemption threshold duty is zero; above it
// duty is charged per item by HS prefix (default rate when nothing matches,
// or on the whole declared value when the item list is empty). VAT is
// charged on (value + duty).
func (t *Table) Compute(declaredValueCents int64, items []Item) Result {
	if declaredValueCents < 0 {
		declaredValueCents = 0
	}

	var dutyCents int64
	if declaredValueCents > t.cfg.ExemptionThresholdCents {
		if len(items) == 0 {
			dutyCents = declaredValueCents * t.cfg.DefaultDutyRateBP / 10000
		} else {
			for _, it := range items {
				v := it.TotalValueCents
				if v <= 0 {
					v = int64(it.Quantity) * it.UnitValueCents
				}
				if v <= 0 {
					continue
				}
				dutyCents += v * t.rateFor(it.HSCode) / 10000
			}
		}
	}

	vatCents := (declaredValueCents + dutyCents) * t.cfg.VATRateBP / 10000

	return Result{
		DutyCents:      dutyCents,
		VATCents:       vatCents,
		TotalFeesCents: dutyCents + vatCents,
	}
}

func (t *Table) rateFor(hsCode string) int64 {
	rate := t.cfg.DefaultDutyRateBP
	bestLen := 0
	for _, r := range t.cfg.Rates {
		if len(r.Prefix) <= bestLen {
			continue
		}
		if len(hsCode) >= len(r.Prefix) && hsCode[:len(r.Prefix)] == r.Prefix {
			rate = r.RateBP
			bestLen = len(r.Prefix)
		}
	}
	return rate
}
