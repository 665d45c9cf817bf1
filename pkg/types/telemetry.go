package types

// APIResponse is the envelope every monitor endpoint shares. On failure the
// portal sets success to false and puts the reason in msg or error.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"msg"`
	Error   string `json:"error"`
}

// Reason returns the server supplied failure text.
func (r APIResponse) Reason() string {
	if r.Message != "" {
		return r.Message
	}
	return r.Error
}

// RuntimeData is point-in-time operational telemetry from an inverter. Power
// values are watts, voltages are tenths of a volt and frequency is hundredths
// of a hertz, as the portal reports them.
type RuntimeData struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"-"`

	SerialNumber    string `json:"serialNum"`
	StatusText      string `json:"statusText"`
	FirmwareCode    string `json:"fwCode"`
	PowerRatingText string `json:"powerRatingText"`
	Lost            bool   `json:"lost"`
	HasRuntimeData  bool   `json:"hasRuntimeData"`

	PV1Voltage int `json:"vpv1"`
	PV2Voltage int `json:"vpv2"`
	PV3Voltage int `json:"vpv3"`
	PV1Power   int `json:"ppv1"`
	PV2Power   int `json:"ppv2"`
	PV3Power   int `json:"ppv3"`
	PVPower    int `json:"ppv"`

	GridVoltageR  int `json:"vacr"`
	GridVoltageS  int `json:"vacs"`
	GridVoltageT  int `json:"vact"`
	GridFrequency int `json:"fac"`
	EPSVoltageR   int `json:"vepsr"`
	EPSFrequency  int `json:"feps"`
	EPSPower      int `json:"peps"`

	PowerToGrid      int `json:"pToGrid"`
	PowerToUser      int `json:"pToUser"`
	InverterPower    int `json:"pinv"`
	RectifierPower   int `json:"prec"`
	ConsumptionPower int `json:"consumptionPower"`

	InternalTemp  int `json:"tinner"`
	RadiatorTemp1 int `json:"tradiator1"`
	RadiatorTemp2 int `json:"tradiator2"`
	BatteryTemp   int `json:"tBat"`

	SOC            int    `json:"soc"`
	BatteryVoltage int    `json:"vBat"`
	ChargePower    int    `json:"pCharge"`
	DischargePower int    `json:"pDisCharge"`
	BatteryPower   int    `json:"batPower"`
	BatteryStatus  string `json:"batStatus"`

	DeviceTime string `json:"deviceTime"`
	ServerTime string `json:"serverTime"`

	Extra Extra `json:"-"`
}

// UnmarshalJSON decodes runtime data keeping unknown keys in Extra.
func (r *RuntimeData) UnmarshalJSON(data []byte) error {
	type alias RuntimeData
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*r = RuntimeData(a)
	r.Extra = extra
	return nil
}

// EnergyData holds daily and lifetime energy counters. Raw counters are in
// tenths of a kWh; the *Text fields are the portal's formatted values.
type EnergyData struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"-"`

	SerialNumber string `json:"serialNum"`
	SOC          int    `json:"soc"`

	TodayYielding    int `json:"todayYielding"`
	TodayCharging    int `json:"todayCharging"`
	TodayDischarging int `json:"todayDischarging"`
	TodayImport      int `json:"todayImport"`
	TodayExport      int `json:"todayExport"`
	TodayUsage       int `json:"todayUsage"`

	TotalYielding    int `json:"totalYielding"`
	TotalCharging    int `json:"totalCharging"`
	TotalDischarging int `json:"totalDischarging"`
	TotalImport      int `json:"totalImport"`
	TotalExport      int `json:"totalExport"`
	TotalUsage       int `json:"totalUsage"`

	TodayYieldingText    string `json:"todayYieldingText"`
	TodayChargingText    string `json:"todayChargingText"`
	TodayDischargingText string `json:"todayDischargingText"`
	TodayImportText      string `json:"todayImportText"`
	TodayExportText      string `json:"todayExportText"`
	TodayUsageText       string `json:"todayUsageText"`
	TotalYieldingText    string `json:"totalYieldingText"`
	TotalUsageText       string `json:"totalUsageText"`

	Extra Extra `json:"-"`
}

// UnmarshalJSON decodes energy data keeping unknown keys in Extra.
func (e *EnergyData) UnmarshalJSON(data []byte) error {
	type alias EnergyData
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*e = EnergyData(a)
	e.Extra = extra
	return nil
}

// KWh converts a raw energy counter to kWh.
func KWh(raw int) float64 {
	return float64(raw) / 10
}

// BatteryData is the aggregate battery bank state plus each module.
type BatteryData struct {
	Success      bool   `json:"success"`
	ErrorMessage string `json:"-"`

	// RemainCapacity and FullCapacity are amp-hours. They are nil when the
	// portal omits them, e.g. for inverters without a BMS link.
	RemainCapacity   *int          `json:"remainCapacity"`
	FullCapacity     *int          `json:"fullCapacity"`
	TotalNumber      int           `json:"totalNumber"`
	TotalVoltageText string        `json:"totalVoltageText"`
	CurrentText      string        `json:"currentText"`
	BatteryUnits     []BatteryUnit `json:"batteryArray"`

	Extra Extra `json:"-"`
}

// UnmarshalJSON decodes battery data keeping unknown keys in Extra.
func (b *BatteryData) UnmarshalJSON(data []byte) error {
	type alias BatteryData
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*b = BatteryData(a)
	b.Extra = extra
	return nil
}

// BatteryUnit is a single battery module reported by the BMS. Voltages are
// hundredths of a volt, current is tenths of an amp and cell temperatures are
// tenths of a degree.
type BatteryUnit struct {
	BatteryKey      string `json:"batteryKey"`
	SerialNumber    string `json:"batterySn"`
	Index           int    `json:"batIndex"`
	Lost            bool   `json:"lost"`
	TotalVoltage    int    `json:"totalVoltage"`
	Current         int    `json:"current"`
	SOC             int    `json:"soc"`
	SOH             int    `json:"soh"`
	CycleCount      int    `json:"cycleCnt"`
	FirmwareVersion string `json:"fwVersionText"`
	MaxCellTemp     int    `json:"batMaxCellTemp"`
	MinCellTemp     int    `json:"batMinCellTemp"`
	MaxCellVoltage  int    `json:"batMaxCellVoltage"`
	MinCellVoltage  int    `json:"batMinCellVoltage"`
	RemainCapacity  int    `json:"remainCapacity"`
	FullCapacity    int    `json:"fullCapacity"`

	Extra Extra `json:"-"`
}

// UnmarshalJSON decodes a battery module keeping unknown keys in Extra.
func (u *BatteryUnit) UnmarshalJSON(data []byte) error {
	type alias BatteryUnit
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*u = BatteryUnit(a)
	u.Extra = extra
	return nil
}
