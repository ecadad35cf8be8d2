package emtmodels

// RegistryDevice is one entry returned by the external device registry.
type RegistryDevice struct {
	ChipId string `json:"chipId"`
}
