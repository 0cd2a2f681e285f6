package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"BranchChat/models"
	"BranchChat/pkg/realtime"
	"BranchChat/pkg/store/storetest"
)

func TestCreateBranchCopiesStrictPrefix(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2", "m3")
	source := conv.Versions[0]
	m1, m2 := source.Messages[0], source.Messages[1]

	branch, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, m2.ID)
	require.NoError(t, err)

	require.Equal(t, []string{"m1"}, contentsOf(branch.Messages))
	require.NotEqual(t, m1.ID, branch.Messages[0].ID)
	require.True(t, m1.CreatedAt.Equal(branch.Messages[0].CreatedAt))
	require.Equal(t, m1.Role, branch.Messages[0].Role)
	require.Equal(t, source.ID, *branch.ParentVersionID)
	require.Equal(t, m2.ID, *branch.RootMessageID)

	// atomically switched
	require.Equal(t, branch.ID, *f.reload(t, conv.ID).ActiveVersionID)
	// source untouched
	require.Equal(t, int64(3), storetest.Count(t, f.db, &models.Message{}, "version_id = ?", source.ID))

	require.Equal(t, 1, f.events.count(realtime.EventVersionCreated))
	require.Equal(t, "user: m1", f.summarizer.last())
}

func TestCreateBranchFromFirstMessageStartsEmpty(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2")
	calls := f.summarizer.calls()

	branch, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, conv.Versions[0].Messages[0].ID)
	require.NoError(t, err)
	require.Empty(t, branch.Messages)
	require.Equal(t, calls, f.summarizer.calls())
	require.Equal(t, "", f.reload(t, conv.ID).Summary)

	// appending continues the new timeline
	msg, err := f.convs.AppendMessage(f.ctx, f.user.ID, conv.ID, models.RoleUser, "m1 again")
	require.NoError(t, err)
	require.Equal(t, branch.ID, msg.VersionID)
}

func TestAppendAfterBranchKeepsOrder(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2", "m3")
	branch, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, conv.Versions[0].Messages[2].ID)
	require.NoError(t, err)

	_, err = f.convs.AppendToVersion(f.ctx, f.user.ID, branch.ID, models.RoleUser, "m3'")
	require.NoError(t, err)

	got, err := f.convs.Get(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	var msgs []MessageView
	for _, v := range got.Versions {
		if v.ID == branch.ID {
			msgs = v.Messages
		}
	}
	require.Equal(t, []string{"m1", "m2", "m3'"}, contentsOf(msgs))
	for i := 1; i < len(msgs); i++ {
		require.True(t, msgs[i].CreatedAt.After(msgs[i-1].CreatedAt))
	}
}

func TestCreateBranchRejectsMessageOfAnotherConversation(t *testing.T) {
	f := newFixture(t)
	a := f.conversation(t, "a1", "a2")
	b := f.conversation(t, "b1", "b2")
	versions := storetest.Count(t, f.db, &models.Version{}, "")

	_, err := f.branches.CreateBranch(f.ctx, f.user.ID, a.ID, b.Versions[0].Messages[1].ID)
	require.ErrorIs(t, err, ErrInvalidBranchPoint)
	require.Equal(t, versions, storetest.Count(t, f.db, &models.Version{}, ""))
	require.Equal(t, a.Versions[0].ID, *f.reload(t, a.ID).ActiveVersionID)
}

func TestCreateBranchNotFound(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2")
	msgID := conv.Versions[0].Messages[1].ID

	_, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, "missing")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.branches.CreateBranch(f.ctx, f.user.ID, "missing", msgID)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = f.branches.CreateBranch(f.ctx, f.other.ID, conv.ID, msgID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, f.convs.SoftDelete(f.ctx, f.user.ID, conv.ID))
	_, err = f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, msgID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestRenderBranchedTree(t *testing.T) {
	f := newFixture(t)
	conv := f.conversation(t, "m1", "m2", "m3")
	v0 := conv.Versions[0]
	v1, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, v0.Messages[1].ID)
	require.NoError(t, err)
	reply, err := f.convs.AppendMessage(f.ctx, f.user.ID, conv.ID, models.RoleAssistant, "m2'")
	require.NoError(t, err)
	_, err = f.convs.AppendMessage(f.ctx, f.user.ID, conv.ID, models.RoleUser, "m3'")
	require.NoError(t, err)
	v2, err := f.branches.CreateBranch(f.ctx, f.user.ID, conv.ID, reply.ID)
	require.NoError(t, err)
	require.Equal(t, []string{"m1"}, contentsOf(v2.Messages))

	tree, err := f.branches.RenderBranchedTree(f.ctx, f.user.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, []string{v0.ID}, tree.Roots)
	require.Len(t, tree.Versions, 3)

	nodes := map[string]BranchedVersion{}
	for _, n := range tree.Versions {
		nodes[n.ID] = n
	}
	require.False(t, nodes[v0.ID].Active)
	require.False(t, nodes[v1.ID].Active)
	require.True(t, nodes[v2.ID].Active)

	require.True(t, nodes[v0.ID].CreatedAt.Equal(conv.CreatedAt))
	require.True(t, nodes[v1.ID].CreatedAt.Equal(v0.Messages[1].CreatedAt))
	require.True(t, nodes[v2.ID].CreatedAt.Equal(reply.CreatedAt))

	require.Empty(t, nodes[v0.ID].Lineage)
	require.Equal(t, []string{v0.ID}, nodes[v1.ID].Lineage)
	require.Equal(t, []string{v0.ID, v1.ID}, nodes[v2.ID].Lineage)
	require.Equal(t, []string{v1.ID}, nodes[v0.ID].Children)
	require.Equal(t, []string{"m1", "m2'", "m3'"}, contentsOf(nodes[v1.ID].Messages))

	_, err = f.branches.RenderBranchedTree(f.ctx, f.other.ID, conv.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestBranchInvariantsHold(t *testing.T) {
	f := newFixture(t)
	a := f.conversation(t, "a1", "a2", "a3")
	b := f.conversation(t, "b1", "b2")
	for _, id := range []string{a.Versions[0].Messages[2].ID, a.Versions[0].Messages[1].ID} {
		_, err := f.branches.CreateBranch(f.ctx, f.user.ID, a.ID, id)
		require.NoError(t, err)
	}
	_, err := f.branches.CreateBranch(f.ctx, f.user.ID, b.ID, b.Versions[0].Messages[1].ID)
	require.NoError(t, err)

	var convs []models.Conversation
	require.NoError(t, f.db.Find(&convs).Error)
	for _, c := range convs {
		require.NotNil(t, c.ActiveVersionID)
		require.Equal(t, int64(1), storetest.Count(t, f.db, &models.Version{}, "id = ? AND conversation_id = ?", *c.ActiveVersionID, c.ID))
	}

	var versions []models.Version
	require.NoError(t, f.db.Find(&versions).Error)
	for _, v := range versions {
		if v.RootMessageID == nil {
			continue
		}
		var root models.Message
		require.NoError(t, f.db.Take(&root, "id = ?", *v.RootMessageID).Error)
		require.NotEqual(t, v.ID, root.VersionID)
		require.Equal(t, *v.ParentVersionID, root.VersionID)
	}
}

func TestListBranched(t *testing.T) {
	f := newFixture(t)
	f.convs.Now = stepClock(time.Now().UTC(), time.Second)
	first := f.conversation(t, "x")
	second := f.conversation(t, "y")
	require.NoError(t, f.convs.SoftDelete(f.ctx, f.user.ID, first.ID))

	trees, err := f.branches.ListBranched(f.ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, trees, 1)
	require.Equal(t, second.ID, trees[0].ID)
	require.True(t, trees[0].Versions[0].Active)
}

func TestLineageStopsOnCycleAndMissingParent(t *testing.T) {
	a, b, c, gone := "a", "b", "c", "gone"
	parents := map[string]*string{a: &c, b: &a, c: &b}
	require.Equal(t, []string{b, c}, lineage(a, parents)[0:2])
	require.NotContains(t, lineage(a, parents), a)

	parents = map[string]*string{a: nil, b: &a, c: &gone}
	require.Equal(t, []string{a}, lineage(b, parents))
	require.Empty(t, lineage(c, parents))
}
