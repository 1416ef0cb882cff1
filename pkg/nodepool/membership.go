package nodepool

import (
	"strconv"
	"strings"

	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// membershipEntry is one parsed peer record from the cluster-membership
// list: hardware-address, ip, cost, model, alias.
type membershipEntry struct {
	hardwareAddress string
	ip              string
	cost            int
	model           string
	alias           string
}

// parseMembershipRecord parses the opaque angle-bracket delimited record
// format, one entry per peer:
//
//	<aa:bb:cc:dd:ee:ff,192.168.1.2,0,EA6350,upstairs><...>
//
// Fields within an entry are comma-separated in the fixed order
// {hardware-address, ip, cost, model, alias}. Malformed entries are skipped
// rather than aborting discovery for the whole mesh; a record with zero
// parseable entries is a ParseError.
func parseMembershipRecord(raw string) ([]membershipEntry, error) {
	var entries []membershipEntry

	for _, chunk := range splitAngleBracketed(raw) {
		fields := strings.Split(chunk, ",")
		if len(fields) != 5 {
			continue
		}
		cost, err := strconv.Atoi(strings.TrimSpace(fields[2]))
		if err != nil {
			continue
		}
		entries = append(entries, membershipEntry{
			hardwareAddress: strings.TrimSpace(fields[0]),
			ip:              strings.TrimSpace(fields[1]),
			cost:            cost,
			model:           strings.TrimSpace(fields[3]),
			alias:           strings.TrimSpace(fields[4]),
		})
	}

	if len(entries) == 0 {
		return nil, neterrors.New(neterrors.KindParse, "no parseable entries in cluster membership record")
	}
	return entries, nil
}

// splitAngleBracketed extracts the contents of each <...> group in order.
func splitAngleBracketed(raw string) []string {
	var chunks []string
	var depth int
	var current strings.Builder

	for _, r := range raw {
		switch r {
		case '<':
			depth++
			current.Reset()
		case '>':
			if depth > 0 {
				chunks = append(chunks, current.String())
				depth--
			}
		default:
			if depth > 0 {
				current.WriteRune(r)
			}
		}
	}
	return chunks
}
