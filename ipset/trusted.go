// Package ipset keeps CIDR sets of source addresses with special
// treatment: trusted networks bypass the protective pipeline entirely
// (health checks, office egress, internal jobs).
package ipset

import (
	"fmt"
	"net"
	"strings"

	"github.com/yl2chen/cidranger"
)

// TrustedNets is an immutable CIDR set. Построен один раз из конфига и
// дальше только читается, поэтому никакой синхронизации не нужно:
// PC-trie ranger конкурентно безопасен для чтения.
type TrustedNets struct {
	ranger cidranger.Ranger
	size   int
}

// New builds a set from CIDR strings. A bare address is accepted as a
// /32 (или /128) сеть — операторы регулярно пишут одиночные адреса в
// списках доверенных.
func New(cidrs []string) (*TrustedNets, error) {
	ranger := cidranger.NewPCTrieRanger()
	size := 0

	for _, raw := range cidrs {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		if !strings.ContainsRune(raw, '/') {
			if ip := net.ParseIP(raw); ip != nil && ip.To4() != nil {
				raw += "/32"
			} else {
				raw += "/128"
			}
		}

		_, network, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot parse trusted network %q: %w", raw, err)
		}

		if err := ranger.Insert(cidranger.NewBasicRangerEntry(*network)); err != nil {
			return nil, fmt.Errorf("cannot insert trusted network %q: %w", raw, err)
		}

		size++
	}

	return &TrustedNets{
		ranger: ranger,
		size:   size,
	}, nil
}

// Contains reports whether the IP belongs to any trusted network.
func (t *TrustedNets) Contains(ip net.IP) bool {
	if t == nil || ip == nil {
		return false
	}

	contains, err := t.ranger.Contains(ip)
	if err != nil {
		// Единственная ошибка ranger'а — не-IP вход; считаем такой
		// адрес недоверенным.
		return false
	}

	return contains
}

// Size returns the number of configured networks.
func (t *TrustedNets) Size() int {
	if t == nil {
		return 0
	}

	return t.size
}
