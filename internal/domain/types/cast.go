package types

// Payload is the decrypted JSON object a companion addressed to this device.
// Numbers are kept as json.Number so values survive without float rounding.
type Payload map[string]any

// DeviceInfo carries a device's base64 public key.
type DeviceInfo struct {
	PublicKey string `json:"publicKey"`
}

// DeviceCode is the registration response.
type DeviceCode struct {
	DeviceCode PairingCode `json:"deviceCode"`
}

// CastData is the fetch response. An empty EncCastData means nothing has
// been claimed yet.
type CastData struct {
	EncCastData string `json:"encCastData"`
}

// CastDataClaim publishes a sealed payload for a code.
type CastDataClaim struct {
	DeviceCode PairingCode `json:"deviceCode"`
	EncPayload string      `json:"encPayload"`
}
