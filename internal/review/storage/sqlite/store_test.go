package sqlite

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

var testClock = time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir() + "/ledger.db")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedPost(t *testing.T, store *Store, id, authorID string, status domain.Status, createdAt time.Time) {
	t.Helper()
	err := store.CreatePost(context.Background(), domain.Post{
		ID:        id,
		AuthorID:  authorID,
		Title:     "Invite application " + id,
		Content:   "please let me in",
		Status:    status,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	})
	if err != nil {
		t.Fatalf("seed post %s: %v", id, err)
	}
}

func setSettings(t *testing.T, store *Store, minVotes int, rate float64) {
	t.Helper()
	err := store.PutSettings(context.Background(), domain.ReviewSettings{MinVotes: minVotes, ApprovalRate: rate})
	if err != nil {
		t.Fatalf("put settings: %v", err)
	}
}

func TestPostRoundTrip(t *testing.T) {
	store := openTestStore(t)

	seedPost(t, store, "post-1", "user-1", domain.StatusFirstReview, testClock)

	post, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.AuthorID != "user-1" {
		t.Fatalf("author = %q, want user-1", post.AuthorID)
	}
	if post.Status != domain.StatusFirstReview {
		t.Fatalf("status = %s, want first_review", post.Status)
	}
	if !post.CreatedAt.Equal(testClock) {
		t.Fatalf("created_at = %v, want %v", post.CreatedAt, testClock)
	}
	if post.ReviewerID != "" || !post.ClaimExpires.IsZero() {
		t.Fatal("fresh post must be unclaimed")
	}

	if _, err := store.GetPost(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing post err = %v, want ErrNotFound", err)
	}
}

func TestCreatePostRejectsSecondActiveApplication(t *testing.T) {
	store := openTestStore(t)

	seedPost(t, store, "post-1", "user-1", domain.StatusFirstReview, testClock)

	err := store.CreatePost(context.Background(), domain.Post{
		ID:        "post-2",
		AuthorID:  "user-1",
		Title:     "second try",
		Content:   "again",
		Status:    domain.StatusFirstReview,
		CreatedAt: testClock,
		UpdatedAt: testClock,
	})
	if !errors.Is(err, storage.ErrActiveApplication) {
		t.Fatalf("err = %v, want ErrActiveApplication", err)
	}

	// A rejected application does not block a new one.
	seedPost(t, store, "post-3", "user-2", domain.StatusRejected, testClock)
	seedPost(t, store, "post-4", "user-2", domain.StatusFirstReview, testClock)
}

func TestCreatePostRejectsWhenApplicationGranted(t *testing.T) {
	store := openTestStore(t)

	seedPost(t, store, "post-1", "user-1", domain.StatusApproved, testClock)

	err := store.CreatePost(context.Background(), domain.Post{
		ID:        "post-2",
		AuthorID:  "user-1",
		Title:     "second try",
		Content:   "again",
		Status:    domain.StatusFirstReview,
		CreatedAt: testClock,
		UpdatedAt: testClock,
	})
	if !errors.Is(err, storage.ErrApplicationGranted) {
		t.Fatalf("err = %v, want ErrApplicationGranted", err)
	}
}

func TestCastVoteRecordsAndCounts(t *testing.T) {
	store := openTestStore(t)
	setSettings(t, store, 5, 0.6)
	seedPost(t, store, "post-1", "author", domain.StatusFirstReview, testClock)

	result, err := store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "voter-1", Type: domain.VoteUp, CreatedAt: testClock,
	})
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if result.Post.UpVotes != 1 || result.Post.DownVotes != 0 {
		t.Fatalf("counters = %d/%d, want 1/0", result.Post.UpVotes, result.Post.DownVotes)
	}
	if result.Outcome != domain.TallyPending {
		t.Fatalf("outcome = %d, want pending", result.Outcome)
	}

	_, err = store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "voter-1", Type: domain.VoteDown, CreatedAt: testClock,
	})
	if !errors.Is(err, storage.ErrDuplicateVote) {
		t.Fatalf("duplicate vote err = %v, want ErrDuplicateVote", err)
	}

	_, err = store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "author", Type: domain.VoteUp, CreatedAt: testClock,
	})
	if !errors.Is(err, storage.ErrSelfVote) {
		t.Fatalf("self vote err = %v, want ErrSelfVote", err)
	}

	_, err = store.CastVote(context.Background(), domain.Vote{
		PostID: "missing", UserID: "voter-1", Type: domain.VoteUp, CreatedAt: testClock,
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing post err = %v, want ErrNotFound", err)
	}
}

func TestCastVotePromotesAtThreshold(t *testing.T) {
	store := openTestStore(t)
	setSettings(t, store, 5, 0.6)
	seedPost(t, store, "post-1", "author", domain.StatusFirstReview, testClock)

	// 3 up, 2 down: rate 0.6 at total 5 promotes (inclusive threshold).
	votes := []domain.Vote{
		{PostID: "post-1", UserID: "v1", Type: domain.VoteUp},
		{PostID: "post-1", UserID: "v2", Type: domain.VoteUp},
		{PostID: "post-1", UserID: "v3", Type: domain.VoteDown},
		{PostID: "post-1", UserID: "v4", Type: domain.VoteDown},
	}
	for _, vote := range votes {
		vote.CreatedAt = testClock
		if _, err := store.CastVote(context.Background(), vote); err != nil {
			t.Fatalf("cast vote %s: %v", vote.UserID, err)
		}
	}

	result, err := store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "v5", Type: domain.VoteUp, CreatedAt: testClock,
	})
	if err != nil {
		t.Fatalf("cast deciding vote: %v", err)
	}
	if result.Outcome != domain.TallyPromoted {
		t.Fatalf("outcome = %d, want promoted", result.Outcome)
	}
	if result.Post.Status != domain.StatusSecondReview {
		t.Fatalf("status = %s, want second_review", result.Post.Status)
	}

	// The post left voting-open; further votes are invalid.
	_, err = store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "v6", Type: domain.VoteUp, CreatedAt: testClock,
	})
	if !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("post-promotion vote err = %v, want ErrInvalidState", err)
	}
}

func TestCastVoteRejectsBelowThreshold(t *testing.T) {
	store := openTestStore(t)
	setSettings(t, store, 5, 0.6)
	seedPost(t, store, "post-1", "author", domain.StatusFirstReview, testClock)

	// 2 up, 3 down: rate 0.4 at total 5 rejects.
	votes := []domain.Vote{
		{PostID: "post-1", UserID: "v1", Type: domain.VoteUp},
		{PostID: "post-1", UserID: "v2", Type: domain.VoteUp},
		{PostID: "post-1", UserID: "v3", Type: domain.VoteDown},
		{PostID: "post-1", UserID: "v4", Type: domain.VoteDown},
	}
	for _, vote := range votes {
		vote.CreatedAt = testClock
		if _, err := store.CastVote(context.Background(), vote); err != nil {
			t.Fatalf("cast vote %s: %v", vote.UserID, err)
		}
	}
	result, err := store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "v5", Type: domain.VoteDown, CreatedAt: testClock,
	})
	if err != nil {
		t.Fatalf("cast deciding vote: %v", err)
	}
	if result.Outcome != domain.TallyRejected {
		t.Fatalf("outcome = %d, want rejected", result.Outcome)
	}
	if result.Post.Status != domain.StatusRejected {
		t.Fatalf("status = %s, want rejected", result.Post.Status)
	}
	if result.Post.RejectReason == "" {
		t.Fatal("expected a community rejection reason")
	}
}

func TestCastVoteReadsSettingsPerEvaluation(t *testing.T) {
	store := openTestStore(t)
	setSettings(t, store, 3, 0.5)
	seedPost(t, store, "post-1", "author", domain.StatusFirstReview, testClock)

	for _, voter := range []string{"v1", "v2"} {
		if _, err := store.CastVote(context.Background(), domain.Vote{
			PostID: "post-1", UserID: voter, Type: domain.VoteUp, CreatedAt: testClock,
		}); err != nil {
			t.Fatalf("cast vote %s: %v", voter, err)
		}
	}

	// Raising min_votes before the third vote defers the evaluation.
	setSettings(t, store, 10, 0.5)
	result, err := store.CastVote(context.Background(), domain.Vote{
		PostID: "post-1", UserID: "v3", Type: domain.VoteUp, CreatedAt: testClock,
	})
	if err != nil {
		t.Fatalf("cast vote v3: %v", err)
	}
	if result.Outcome != domain.TallyPending {
		t.Fatalf("outcome = %d, want pending under raised min_votes", result.Outcome)
	}
}

func TestClaimPostExclusive(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author", domain.StatusSecondReview, testClock)

	claimed, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock, 30*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ReviewerID != "rev-1" {
		t.Fatalf("reviewer = %q, want rev-1", claimed.ReviewerID)
	}
	if !claimed.ClaimExpires.Equal(testClock.Add(30 * time.Minute)) {
		t.Fatalf("claim expires = %v, want +30m", claimed.ClaimExpires)
	}

	_, err = store.ClaimPost(context.Background(), "post-1", "rev-2", testClock, 30*time.Minute)
	if !errors.Is(err, storage.ErrClaimConflict) {
		t.Fatalf("second claim err = %v, want ErrClaimConflict", err)
	}

	// Re-claim by the holder is idempotent.
	again, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock.Add(time.Minute), 30*time.Minute)
	if err != nil {
		t.Fatalf("re-claim: %v", err)
	}
	if !again.ClaimExpires.Equal(claimed.ClaimExpires) {
		t.Fatal("re-claim must not extend the deadline")
	}
}

func TestClaimPostRequiresSecondReview(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author", domain.StatusFirstReview, testClock)

	_, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock, time.Minute)
	if !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("err = %v, want ErrInvalidState", err)
	}
	_, err = store.ClaimPost(context.Background(), "missing", "rev-1", testClock, time.Minute)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestNextReviewableFIFOAndExclusions(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-old", "a1", domain.StatusSecondReview, testClock)
	seedPost(t, store, "post-mid", "a2", domain.StatusSecondReview, testClock.Add(time.Minute))
	seedPost(t, store, "post-new", "a3", domain.StatusSecondReview, testClock.Add(2*time.Minute))
	seedPost(t, store, "post-voting", "a4", domain.StatusFirstReview, testClock)

	post, eligible, err := store.NextReviewable(context.Background(), "rev-1", nil, testClock, 30*time.Minute)
	if err != nil {
		t.Fatalf("next reviewable: %v", err)
	}
	if post.ID != "post-old" {
		t.Fatalf("post = %s, want oldest first", post.ID)
	}
	if eligible != 3 {
		t.Fatalf("eligible = %d, want 3", eligible)
	}

	// rev-2 skips the head of the queue via the exclusion list.
	post, eligible, err = store.NextReviewable(context.Background(), "rev-2", []string{"post-mid"}, testClock, 30*time.Minute)
	if err != nil {
		t.Fatalf("next reviewable with exclusions: %v", err)
	}
	if post.ID != "post-new" {
		t.Fatalf("post = %s, want post-new (old claimed, mid excluded)", post.ID)
	}
	if eligible != 1 {
		t.Fatalf("eligible = %d, want 1", eligible)
	}

	// Pool exhausted for rev-3 once everything is claimed or excluded.
	_, eligible, err = store.NextReviewable(context.Background(), "rev-3", []string{"post-mid"}, testClock, 30*time.Minute)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if eligible != 0 {
		t.Fatalf("eligible = %d, want 0", eligible)
	}
}

func TestReleaseClaimMakesPostClaimable(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author", domain.StatusSecondReview, testClock)

	if _, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock, 30*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	if err := store.ReleaseClaim(context.Background(), "post-1", "rev-2"); !errors.Is(err, storage.ErrClaimNotHeld) {
		t.Fatalf("release by non-holder err = %v, want ErrClaimNotHeld", err)
	}
	if err := store.ReleaseClaim(context.Background(), "post-1", "rev-1"); err != nil {
		t.Fatalf("release: %v", err)
	}

	// Another reviewer can claim the released post immediately.
	post, _, err := store.NextReviewable(context.Background(), "rev-2", nil, testClock, 30*time.Minute)
	if err != nil {
		t.Fatalf("next reviewable after release: %v", err)
	}
	if post.ID != "post-1" {
		t.Fatalf("post = %s, want post-1", post.ID)
	}
}

func TestFinalizePostApproveAndReject(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author", domain.StatusSecondReview, testClock)
	seedPost(t, store, "post-2", "other", domain.StatusSecondReview, testClock)

	if _, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock, 30*time.Minute); err != nil {
		t.Fatalf("claim post-1: %v", err)
	}
	if _, err := store.ClaimPost(context.Background(), "post-2", "rev-2", testClock, 30*time.Minute); err != nil {
		t.Fatalf("claim post-2: %v", err)
	}

	_, err := store.FinalizePost(context.Background(), "post-1", "rev-2", domain.StatusApproved, "CODE", "", testClock)
	if !errors.Is(err, storage.ErrClaimNotHeld) {
		t.Fatalf("finalize by non-holder err = %v, want ErrClaimNotHeld", err)
	}

	approved, err := store.FinalizePost(context.Background(), "post-1", "rev-1", domain.StatusApproved, "CODE-42", "", testClock)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.Status != domain.StatusApproved || approved.InviteCode != "CODE-42" {
		t.Fatalf("approved = %+v", approved)
	}
	if approved.ReviewedAt.IsZero() || !approved.ClaimExpires.IsZero() {
		t.Fatal("approval records reviewed_at and drops the claim deadline")
	}

	// Second approval attempt hits the terminal state.
	_, err = store.FinalizePost(context.Background(), "post-1", "rev-1", domain.StatusApproved, "CODE-43", "", testClock)
	if !errors.Is(err, storage.ErrInvalidState) {
		t.Fatalf("double approve err = %v, want ErrInvalidState", err)
	}

	rejected, err := store.FinalizePost(context.Background(), "post-2", "rev-2", domain.StatusRejected, "", "low quality", testClock)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if rejected.Status != domain.StatusRejected || rejected.RejectReason != "low quality" {
		t.Fatalf("rejected = %+v", rejected)
	}
}

func TestReleaseExpiredClaims(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author", domain.StatusSecondReview, testClock)

	if _, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock, 30*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	released, err := store.ReleaseExpiredClaims(context.Background(), testClock.Add(29*time.Minute))
	if err != nil {
		t.Fatalf("release expired: %v", err)
	}
	if released != 0 {
		t.Fatalf("released = %d, want 0 before expiry", released)
	}

	released, err = store.ReleaseExpiredClaims(context.Background(), testClock.Add(31*time.Minute))
	if err != nil {
		t.Fatalf("release expired: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1 after expiry", released)
	}

	post, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.ReviewerID != "" || !post.ClaimExpires.IsZero() {
		t.Fatal("expired claim must be fully released")
	}
}

func TestNextReviewableReclaimsExpiredClaim(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author", domain.StatusSecondReview, testClock)

	if _, err := store.ClaimPost(context.Background(), "post-1", "rev-1", testClock, 10*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	post, _, err := store.NextReviewable(context.Background(), "rev-2", nil, testClock.Add(11*time.Minute), 10*time.Minute)
	if err != nil {
		t.Fatalf("next reviewable over expired claim: %v", err)
	}
	if post.ReviewerID != "rev-2" {
		t.Fatalf("reviewer = %q, want rev-2", post.ReviewerID)
	}
}

func TestSettingsRoundTripAndValidation(t *testing.T) {
	store := openTestStore(t)

	settings, err := store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get default settings: %v", err)
	}
	if settings.MinVotes != 10 || settings.ApprovalRate != 0.7 {
		t.Fatalf("defaults = %+v", settings)
	}

	setSettings(t, store, 5, 0.6)
	settings, err = store.GetSettings(context.Background())
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if settings.MinVotes != 5 || settings.ApprovalRate != 0.6 {
		t.Fatalf("settings = %+v", settings)
	}

	err = store.PutSettings(context.Background(), domain.ReviewSettings{MinVotes: 0, ApprovalRate: 0.5})
	if err == nil {
		t.Fatal("min_votes 0 must be rejected")
	}
}

func TestListPostsPagination(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-a", "a1", domain.StatusFirstReview, testClock)
	seedPost(t, store, "post-b", "a2", domain.StatusFirstReview, testClock.Add(time.Minute))
	seedPost(t, store, "post-c", "a3", domain.StatusSecondReview, testClock.Add(2*time.Minute))

	page, err := store.ListPosts(context.Background(), storage.PostQuery{PageSize: 2})
	if err != nil {
		t.Fatalf("list posts: %v", err)
	}
	if len(page.Posts) != 2 || page.Posts[0].ID != "post-a" || page.Posts[1].ID != "post-b" {
		t.Fatalf("page 1 = %+v", page.Posts)
	}
	if page.NextPageToken == "" {
		t.Fatal("expected a next page token")
	}

	page, err = store.ListPosts(context.Background(), storage.PostQuery{PageSize: 2, PageToken: page.NextPageToken})
	if err != nil {
		t.Fatalf("list posts page 2: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].ID != "post-c" {
		t.Fatalf("page 2 = %+v", page.Posts)
	}
	if page.NextPageToken != "" {
		t.Fatal("expected no further pages")
	}

	status := domain.StatusSecondReview
	page, err = store.ListPosts(context.Background(), storage.PostQuery{PageSize: 10, Status: &status})
	if err != nil {
		t.Fatalf("list by status: %v", err)
	}
	if len(page.Posts) != 1 || page.Posts[0].ID != "post-c" {
		t.Fatalf("status filter = %+v", page.Posts)
	}
}

func TestStatsSnapshot(t *testing.T) {
	store := openTestStore(t)
	setSettings(t, store, 10, 0.7)
	seedPost(t, store, "post-a", "a1", domain.StatusFirstReview, testClock)
	seedPost(t, store, "post-b", "a2", domain.StatusSecondReview, testClock)
	seedPost(t, store, "post-c", "a3", domain.StatusApproved, testClock)

	if _, err := store.CastVote(context.Background(), domain.Vote{
		PostID: "post-a", UserID: "v1", Type: domain.VoteUp, CreatedAt: testClock,
	}); err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if _, err := store.ClaimPost(context.Background(), "post-b", "rev-1", testClock, 30*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}

	stats, err := store.Stats(context.Background(), testClock)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalPosts != 3 {
		t.Fatalf("total posts = %d, want 3", stats.TotalPosts)
	}
	if stats.ByStatus[domain.StatusFirstReview] != 1 ||
		stats.ByStatus[domain.StatusSecondReview] != 1 ||
		stats.ByStatus[domain.StatusApproved] != 1 {
		t.Fatalf("by status = %+v", stats.ByStatus)
	}
	if stats.TotalVotes != 1 {
		t.Fatalf("total votes = %d, want 1", stats.TotalVotes)
	}
	if stats.OpenClaims != 1 {
		t.Fatalf("open claims = %d, want 1", stats.OpenClaims)
	}
}

func TestCastVoteConcurrentVoters(t *testing.T) {
	store := openTestStore(t)
	setSettings(t, store, 100, 0.7)
	seedPost(t, store, "post-1", "author-1", domain.StatusFirstReview, testClock)

	const voters = 10
	errs := make(chan error, voters)
	var wg sync.WaitGroup
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.CastVote(context.Background(), domain.Vote{
				PostID:    "post-1",
				UserID:    fmt.Sprintf("voter-%02d", n),
				Type:      domain.VoteUp,
				CreatedAt: testClock,
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent vote: %v", err)
		}
	}

	post, err := store.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.UpVotes != voters || post.DownVotes != 0 {
		t.Fatalf("votes = %d/%d, want %d/0", post.UpVotes, post.DownVotes, voters)
	}
}

func TestCastVoteConcurrentAcrossConnections(t *testing.T) {
	path := t.TempDir() + "/ledger.db"
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open first store: %v", err)
	}
	t.Cleanup(func() { _ = first.Close() })
	second, err := Open(path)
	if err != nil {
		t.Fatalf("open second store: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })

	setSettings(t, first, 100, 0.7)
	seedPost(t, first, "post-1", "author-1", domain.StatusFirstReview, testClock)

	const perStore = 5
	stores := []*Store{first, second}
	errs := make(chan error, len(stores)*perStore)
	var wg sync.WaitGroup
	for si, s := range stores {
		for i := 0; i < perStore; i++ {
			wg.Add(1)
			go func(s *Store, n int) {
				defer wg.Done()
				_, err := s.CastVote(context.Background(), domain.Vote{
					PostID:    "post-1",
					UserID:    fmt.Sprintf("voter-%02d", n),
					Type:      domain.VoteUp,
					CreatedAt: testClock,
				})
				errs <- err
			}(s, si*perStore+i)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("cross-connection vote: %v", err)
		}
	}

	post, err := second.GetPost(context.Background(), "post-1")
	if err != nil {
		t.Fatalf("get post: %v", err)
	}
	if post.UpVotes != len(stores)*perStore {
		t.Fatalf("up votes = %d, want %d", post.UpVotes, len(stores)*perStore)
	}
}

func TestNextReviewableConcurrentSingleWinner(t *testing.T) {
	store := openTestStore(t)
	seedPost(t, store, "post-1", "author-1", domain.StatusSecondReview, testClock)

	const reviewers = 8
	type outcome struct {
		post domain.Post
		err  error
	}
	outcomes := make(chan outcome, reviewers)
	var wg sync.WaitGroup
	for i := 0; i < reviewers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			post, _, err := store.NextReviewable(
				context.Background(), fmt.Sprintf("rev-%d", n), nil, testClock, 30*time.Minute)
			outcomes <- outcome{post: post, err: err}
		}(i)
	}
	wg.Wait()
	close(outcomes)

	winners := 0
	for o := range outcomes {
		switch {
		case o.err == nil:
			winners++
			if o.post.ID != "post-1" {
				t.Fatalf("claimed post = %q, want post-1", o.post.ID)
			}
		case errors.Is(o.err, storage.ErrNotFound),
			errors.Is(o.err, storage.ErrClaimConflict),
			errors.Is(o.err, storage.ErrBusy):
			// Losers see a retryable outcome, never an internal failure.
		default:
			t.Fatalf("loser error = %v", o.err)
		}
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1", winners)
	}
}

func TestStatsUserAndTodayCounts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seedPost(t, store, "post-old", "a1", domain.StatusFirstReview, testClock.Add(-48*time.Hour))
	seedPost(t, store, "post-new", "a2", domain.StatusSecondReview, testClock)

	for _, user := range []domain.Identity{
		{UserID: "u-normal", Role: domain.RoleNormal},
		{UserID: "u-cert", Role: domain.RoleCertified, TrustLevel: 3},
		{UserID: "u-admin", Role: domain.RoleAdmin},
	} {
		if err := store.RecordUser(ctx, user, testClock); err != nil {
			t.Fatalf("record user %s: %v", user.UserID, err)
		}
	}
	// Re-observing the same user updates facts instead of growing the count.
	err := store.RecordUser(ctx, domain.Identity{
		UserID: "u-normal", Role: domain.RoleCertified, TrustLevel: 3,
	}, testClock.Add(time.Minute))
	if err != nil {
		t.Fatalf("record user again: %v", err)
	}

	if _, err := store.ClaimPost(ctx, "post-new", "rev-1", testClock, 30*time.Minute); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := store.FinalizePost(ctx, "post-new", "rev-1", domain.StatusApproved, "CODE-9", "", testClock); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	stats, err := store.Stats(ctx, testClock)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalUsers != 3 {
		t.Fatalf("total users = %d, want 3", stats.TotalUsers)
	}
	// u-normal was promoted to certified on the second observation.
	if stats.CertifiedUsers != 3 {
		t.Fatalf("certified users = %d, want 3", stats.CertifiedUsers)
	}
	if stats.TodayPosts != 1 {
		t.Fatalf("today posts = %d, want 1", stats.TodayPosts)
	}
	if stats.TodayApproved != 1 {
		t.Fatalf("today approved = %d, want 1", stats.TodayApproved)
	}
}
