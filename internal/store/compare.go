package store

import (
	"context"

	"github.com/driftcode/agentcore/pkg/models"
)

// BranchDiff is the result of comparing two branch heads: the event they
// last shared, and the events unique to each side beyond it.
type BranchDiff struct {
	CommonAncestorID string
	OnlyInA          []*models.Event
	OnlyInB          []*models.Event
}

// CompareBranches finds headA and headB's most recent common ancestor and
// the events each branch has beyond it (spec §10 "Branch comparison"),
// grounded on the teacher's internal/sessions/branch_store.go
// GetFullBranchPath/GetBranchTree shape, simplified to this store's
// root-to-leaf event-chain branch model rather than a separate
// branch-hierarchy table.
func CompareBranches(ctx context.Context, s Store, headA, headB string) (*BranchDiff, error) {
	chainA, err := s.GetAncestors(ctx, headA)
	if err != nil {
		return nil, err
	}
	chainB, err := s.GetAncestors(ctx, headB)
	if err != nil {
		return nil, err
	}

	indexB := make(map[string]int, len(chainB))
	for i, ev := range chainB {
		indexB[ev.ID] = i
	}

	commonIdx := -1
	for i, ev := range chainA {
		if _, ok := indexB[ev.ID]; !ok {
			break
		}
		commonIdx = i
	}
	if commonIdx < 0 {
		return &BranchDiff{OnlyInA: chainA, OnlyInB: chainB}, nil
	}

	common := chainA[commonIdx]
	return &BranchDiff{
		CommonAncestorID: common.ID,
		OnlyInA:          chainA[commonIdx+1:],
		OnlyInB:          chainB[indexB[common.ID]+1:],
	}, nil
}
