// Package nodepool implements NodePool, discovering peer mesh nodes from a
// primary DeviceShell and fanning commands out to per-peer shells.
package nodepool

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/netwatch-hq/netwatch/pkg/model"
	"github.com/netwatch-hq/netwatch/pkg/neterrors"
)

// peerFactory opens a DeviceShell to a peer's IP address. Production code
// passes shell.NewSSHShell bound to the deployment's router credentials;
// tests substitute a fake.
type peerFactory func(ip string) (peerShell, error)

// peerShell is the subset of DeviceShell that NodePool drives. Kept narrow
// so tests can fake it without a real transport. It is an alias for an
// unnamed interface type, so a factory written in another package against
// the same method set has a type identical to peerFactory.
type peerShell = interface {
	Connect(ctx context.Context) error
	Exec(ctx context.Context, command string) (string, error)
	Disconnect() error
}

type peer struct {
	node        model.Node
	shell       peerShell
	reachable   bool
	lastChecked time.Time
}

// NodePool discovers and fans commands out to peer mesh nodes.
type NodePool struct {
	mu      sync.RWMutex
	peers   map[string]*peer // keyed by hardware address
	factory peerFactory

	fanoutLimit int
}

// New builds an empty NodePool. factory is used by Initialize to open a
// DeviceShell to each discovered peer's IP.
func New(factory peerFactory) *NodePool {
	return &NodePool{
		peers:       make(map[string]*peer),
		factory:     factory,
		fanoutLimit: 8,
	}
}

// Initialize parses the primary shell's cluster-membership record and opens
// one DeviceShell per peer concurrently. Peer connection failures are
// tolerated: the peer is recorded as unreachable rather than aborting
// discovery for the whole mesh.
func (p *NodePool) Initialize(ctx context.Context, primary peerShell) error {
	raw, err := primary.Exec(ctx, "mesh show members")
	if err != nil {
		return neterrors.Wrap(neterrors.KindUnavailable, "read cluster membership", err)
	}

	entries, err := parseMembershipRecord(raw)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.fanoutLimit)

	results := make([]*peer, len(entries))
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			node := model.Node{
				HardwareAddress: e.hardwareAddress,
				Address:         e.ip,
				Model:           e.model,
				Alias:           e.alias,
				Backhaul:        backhaulFor(e.cost),
			}
			pr := &peer{node: node, lastChecked: time.Now()}

			sh, err := p.factory(e.ip)
			if err != nil {
				pr.reachable = false
				results[i] = pr
				return nil
			}
			if err := sh.Connect(gctx); err != nil {
				pr.reachable = false
				results[i] = pr
				return nil
			}
			pr.shell = sh
			pr.reachable = true
			results[i] = pr
			return nil
		})
	}
	// errgroup's Go never returns a non-nil error above, so Wait only
	// surfaces context cancellation.
	if err := g.Wait(); err != nil {
		return neterrors.Wrap(neterrors.KindCancelled, "node discovery cancelled", err)
	}

	p.mu.Lock()
	for _, pr := range results {
		if pr == nil {
			continue
		}
		p.peers[pr.node.HardwareAddress] = pr
	}
	p.mu.Unlock()

	return nil
}

// backhaulFor applies the documented rule: a wired peer reports cost 0,
// anything above that is wireless backhaul.
func backhaulFor(cost int) model.Backhaul {
	if cost == 0 {
		return model.BackhaulWired
	}
	return model.BackhaulWireless
}

// ExecOn runs command on one peer, identified by hardware address.
func (p *NodePool) ExecOn(ctx context.Context, hardwareAddress, command string) (string, error) {
	p.mu.RLock()
	pr, ok := p.peers[hardwareAddress]
	p.mu.RUnlock()

	if !ok {
		return "", neterrors.New(neterrors.KindUnknownNode, "no such node: "+hardwareAddress)
	}
	if !pr.reachable || pr.shell == nil {
		return "", neterrors.New(neterrors.KindUnavailable, "node unreachable: "+hardwareAddress)
	}
	return pr.shell.Exec(ctx, command)
}

// ExecResult is one peer's outcome from ExecOnAll.
type ExecResult struct {
	Stdout string
	Err    error
}

// ExecOnAll runs command in parallel across reachable peers under a shared
// deadline from ctx.
func (p *NodePool) ExecOnAll(ctx context.Context, command string) map[string]ExecResult {
	p.mu.RLock()
	peers := make([]*peer, 0, len(p.peers))
	for _, pr := range p.peers {
		peers = append(peers, pr)
	}
	p.mu.RUnlock()

	results := make(map[string]ExecResult, len(peers))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, pr := range peers {
		pr := pr
		if !pr.reachable || pr.shell == nil {
			mu.Lock()
			results[pr.node.HardwareAddress] = ExecResult{Err: neterrors.New(neterrors.KindUnavailable, "node unreachable")}
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := pr.shell.Exec(ctx, command)
			mu.Lock()
			results[pr.node.HardwareAddress] = ExecResult{Stdout: out, Err: err}
			mu.Unlock()
		}()
	}
	wg.Wait()

	return results
}

// Nodes returns the current list of discovered peers with last-known
// reachability.
func (p *NodePool) Nodes() []model.Node {
	p.mu.RLock()
	defer p.mu.RUnlock()

	nodes := make([]model.Node, 0, len(p.peers))
	for _, pr := range p.peers {
		n := pr.node
		n.Reachable = pr.reachable
		nodes = append(nodes, n)
	}
	return nodes
}

// Shutdown disconnects every peer shell, tolerating individual failures.
func (p *NodePool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, pr := range p.peers {
		if pr.shell != nil {
			_ = pr.shell.Disconnect()
		}
	}
}
