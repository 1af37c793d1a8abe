package domain

import (
	interfaces "castpair/internal/domain/interfaces"
	types "castpair/internal/domain/types"
)

// PairNamespace is re-exported for compact imports.
const PairNamespace = types.PairNamespace

// Type aliases expose domain types from the types subpackage for compact imports.
type (
	PairingCode      = types.PairingCode
	SenderID         = types.SenderID
	Namespace        = types.Namespace
	Fingerprint      = types.Fingerprint
	X25519Public     = types.X25519Public
	X25519Private    = types.X25519Private
	HandshakeRequest = types.HandshakeRequest
	HandshakeReply   = types.HandshakeReply
	ChannelOptions   = types.ChannelOptions
	Payload          = types.Payload
	DeviceInfo       = types.DeviceInfo
	DeviceCode       = types.DeviceCode
	CastData         = types.CastData
	CastDataClaim    = types.CastDataClaim
)

// Interface aliases expose domain interfaces from the interfaces subpackage.
type (
	PairingClient      = interfaces.PairingClient
	ClaimClient        = interfaces.ClaimClient
	MessageHandler     = interfaces.MessageHandler
	DisconnectHandler  = interfaces.DisconnectHandler
	DiscoveryChannel   = interfaces.DiscoveryChannel
	KeyOpener          = interfaces.KeyOpener
	Registrar          = interfaces.Registrar
	Poller             = interfaces.Poller
	HandshakeResponder = interfaces.HandshakeResponder
	Claimer            = interfaces.Claimer
)
