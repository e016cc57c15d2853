// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"context"
	"fmt"
	"net"
)

// NetworkPolicy is the enforcement mode applied inside a container at
// start.
type NetworkPolicy string

const (
	PolicyAllowAll  NetworkPolicy = "allow-all"
	PolicyDeny      NetworkPolicy = "deny"
	PolicyAllowlist NetworkPolicy = "allowlist"
)

// requiresNetAdmin reports whether this policy needs NET_ADMIN granted
// to the container to insert firewall rules — only the allowlist
// policy does; deny uses a default-drop OUTPUT policy that needs no
// extra capability beyond what the engine's network namespace already
// permits the container's own iptables calls.
func (p NetworkPolicy) requiresNetAdmin() bool {
	return p == PolicyAllowlist
}

// ApplyNetworkPolicy enforces policy inside the named, already-started
// container via iptables run through Exec. Failure to apply a
// restrictive policy (deny or allowlist) is fatal for the session —
// the caller must treat a non-nil error as session-ending, never as a
// retryable warning, since a failed deny/allowlist means the container
// is silently running with unrestricted network access.
func ApplyNetworkPolicy(ctx context.Context, rt Runtime, container string, policy NetworkPolicy, allowed []string, resolver *net.Resolver) error {
	switch policy {
	case PolicyAllowAll, "":
		return nil

	case PolicyDeny:
		rules := [][]string{
			{"iptables", "-A", "OUTPUT", "-o", "lo", "-j", "ACCEPT"},
			{"iptables", "-P", "OUTPUT", "DROP"},
		}
		return runRules(ctx, rt, container, rules)

	case PolicyAllowlist:
		if resolver == nil {
			resolver = net.DefaultResolver
		}
		var rules [][]string
		rules = append(rules,
			[]string{"iptables", "-A", "OUTPUT", "-o", "lo", "-j", "ACCEPT"},
			[]string{"iptables", "-A", "OUTPUT", "-p", "udp", "--dport", "53", "-j", "ACCEPT"},
		)
		for _, host := range allowed {
			ips, err := resolver.LookupIPAddr(ctx, host)
			if err != nil {
				return fmt.Errorf("resolving allowlisted host %q: %w", host, err)
			}
			for _, ip := range ips {
				rules = append(rules, []string{"iptables", "-A", "OUTPUT", "-d", ip.String(), "-j", "ACCEPT"})
			}
		}
		rules = append(rules, []string{"iptables", "-P", "OUTPUT", "DROP"})
		return runRules(ctx, rt, container, rules)

	default:
		return fmt.Errorf("unknown network policy %q", policy)
	}
}

func runRules(ctx context.Context, rt Runtime, container string, rules [][]string) error {
	for _, rule := range rules {
		if _, err := rt.Exec(ctx, container, rule); err != nil {
			return fmt.Errorf("applying network rule %v: %w", rule, err)
		}
	}
	return nil
}
