package types

import "encoding/json"

// InverterSelection identifies the device that scoped read operations target.
type InverterSelection struct {
	SerialNumber string `json:"serialNum"`
	PlantID      string `json:"plantId"`
	// InverterIndex is the ordinal position in the account's device list, or
	// -1 when the selection was made by serial number.
	InverterIndex int `json:"inverterIndex"`
}

// IsZero reports whether no device has been selected yet.
func (s InverterSelection) IsZero() bool {
	return s.SerialNumber == ""
}

// Plant is a site on the monitor portal as returned by login.
type Plant struct {
	PlantID   json.Number       `json:"plantId"`
	Name      string            `json:"name"`
	Inverters []json.RawMessage `json:"inverters"`
}

// Inverter is a device listed under a plant in the login response.
type Inverter struct {
	SerialNumber     string `json:"serialNum"`
	Alias            string `json:"alias"`
	Phase            int    `json:"phase"`
	DeviceType       int    `json:"deviceType"`
	SubDeviceType    int    `json:"subDeviceType"`
	DeviceTypeText   string `json:"deviceTypeText4APP"`
	FirmwareVersion  string `json:"fwVersion"`
	PowerRatingText  string `json:"powerRatingText"`
	BatteryType      string `json:"batteryType"`
	Lost             bool   `json:"lost"`
	AllowExportGrid  bool   `json:"allowExport2Grid"`
	WithBatteryData  bool   `json:"withbatteryData"`
	HardwareVersion  string `json:"hardwareVersion"`
	ProtocolVersion  int    `json:"protocolVersion"`
	MachineType      int    `json:"machineType"`
	DatalogSerialNum string `json:"datalogSn"`

	// PlantID and PlantName come from the enclosing plant, not the inverter
	// object itself.
	PlantID   string `json:"-"`
	PlantName string `json:"-"`

	Extra Extra `json:"-"`
}

// UnmarshalJSON decodes an inverter keeping unknown keys in Extra.
func (i *Inverter) UnmarshalJSON(data []byte) error {
	type alias Inverter
	var a alias
	extra, err := decodeWithExtra(data, &a)
	if err != nil {
		return err
	}
	*i = Inverter(a)
	i.Extra = extra
	return nil
}

// LoginResponse is the body of a successful login.
type LoginResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"msg"`
	Plants  []Plant `json:"plants"`
}

// Inverters flattens the plant list into inverters tagged with their plant.
func (l LoginResponse) Inverters() ([]Inverter, error) {
	var inverters []Inverter
	for _, plant := range l.Plants {
		for _, raw := range plant.Inverters {
			var inv Inverter
			if err := json.Unmarshal(raw, &inv); err != nil {
				return nil, err
			}
			inv.PlantID = plant.PlantID.String()
			inv.PlantName = plant.Name
			inverters = append(inverters, inv)
		}
	}
	return inverters, nil
}
