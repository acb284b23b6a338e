package wire

import (
	"fmt"
	"net"
)

// AddressSize is the length in bytes of the packed Address form: four
// network-order IPv4 octets followed by a two-byte network-order port.
const AddressSize = 6

// Address is an IPv4 endpoint, packable into the 6-byte sender-address
// form carried in every Message header.
type Address struct {
	IP   [4]byte
	Port uint16
}

// NewAddress builds an Address from a net.IP (which must have, or
// convert to, a 4-byte form) and a port.
func NewAddress(ip net.IP, port uint16) (Address, error) {
	v4 := ip.To4()
	if v4 == nil {
		return Address{}, fmt.Errorf("wire: %s is not an IPv4 address", ip)
	}
	var a Address
	copy(a.IP[:], v4)
	a.Port = port
	return a, nil
}

// Bytes packs the Address into its 6-byte wire form. Encode/decode on
// this form is a bijection: DecodeAddress(a.Bytes()) == a for every a.
func (a Address) Bytes() [AddressSize]byte {
	var b [AddressSize]byte
	copy(b[0:4], a.IP[:])
	b[4] = byte(a.Port >> 8)
	b[5] = byte(a.Port)
	return b
}

// DecodeAddress unpacks a 6-byte wire form into an Address.
func DecodeAddress(b [AddressSize]byte) Address {
	var a Address
	copy(a.IP[:], b[0:4])
	a.Port = uint16(b[4])<<8 | uint16(b[5])
	return a
}

// IPString returns the dotted-decimal form of the address's IP.
func (a Address) IPString() string {
	return net.IP(a.IP[:]).String()
}

// String returns "ip:port".
func (a Address) String() string {
	return fmt.Sprintf("%s:%d", a.IPString(), a.Port)
}
