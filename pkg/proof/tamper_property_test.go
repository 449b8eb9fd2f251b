//go:build property
// +build property

// Property-based tests for the tamper-detection guarantee: mutating any
// block field after creation must be reported at or before that block.
package proof_test

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/Soulfra/soulfra-sub004/pkg/proof"
)

var branches = []proof.Branch{proof.BranchProposer, proof.BranchExecutor, proof.BranchVerifier}

func chainFrom(payloads []map[string]any) (proof.Chain, error) {
	var chain proof.Chain
	ts := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, p := range payloads {
		b, err := proof.NewBlock(i, branches[i%3], p, chain.Head(), ts.Add(time.Duration(i)*time.Second), true, false)
		if err != nil {
			return nil, err
		}
		chain, err = chain.Append(b)
		if err != nil {
			return nil, err
		}
	}
	return chain, nil
}

func genPayloads() gopter.Gen {
	return gen.SliceOf(gen.AlphaString()).Map(func(fields []string) []map[string]any {
		n := len(fields)%5 + 1
		payloads := make([]map[string]any, n)
		for i := range payloads {
			payloads[i] = map[string]any{"seq": i}
			for j, f := range fields {
				if f != "" && j%n == i {
					payloads[i][f] = j
				}
			}
		}
		return payloads
	})
}

func TestTamperDetectionProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("any payload mutation breaks validation at or before the mutated block", prop.ForAll(
		func(payloads []map[string]any, target int, key string) bool {
			chain, err := chainFrom(payloads)
			if err != nil || len(chain) == 0 {
				return err == nil
			}
			i := target % len(chain)
			if i < 0 {
				i = -i
			}
			chain[i].Payload[key] = "tampered"

			res := proof.Validate(chain)
			return !res.Valid && res.FirstBreakIndex != nil && *res.FirstBreakIndex <= i
		},
		genPayloads(),
		gen.Int(),
		gen.AlphaString().SuchThat(func(s string) bool { return s != "" }),
	))

	properties.Property("untampered chains always validate", prop.ForAll(
		func(payloads []map[string]any) bool {
			chain, err := chainFrom(payloads)
			if err != nil {
				return false
			}
			return proof.Validate(chain).Valid
		},
		genPayloads(),
	))

	properties.TestingRun(t)
}
