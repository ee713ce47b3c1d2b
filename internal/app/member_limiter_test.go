package app

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type serverError string

func (e serverError) Error() string { return string(e) }

func (serverError) RedisError() {}

// scripterStub plays the admit script against in-process counters.
type scripterStub struct {
	counts   map[string]int64
	ttlMs    int64
	noScript bool
	reply    interface{}
	err      error
	evals    int
	keys     []string
	args     []interface{}
}

func newScripterStub() *scripterStub {
	return &scripterStub{counts: map[string]int64{}, ttlMs: 41500}
}

func (s *scripterStub) run(keys []string, args []interface{}) *redis.Cmd {
	s.keys, s.args = keys, args
	if s.err != nil {
		return redis.NewCmdResult(nil, s.err)
	}
	if s.reply != nil {
		return redis.NewCmdResult(s.reply, nil)
	}
	limit := int64(args[0].(int))
	var admitted int64
	if s.counts[keys[0]] < limit {
		s.counts[keys[0]]++
		admitted = 1
	}
	return redis.NewCmdResult([]interface{}{admitted, s.ttlMs}, nil)
}

func (s *scripterStub) Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	s.evals++
	return s.run(keys, args)
}

func (s *scripterStub) EvalSha(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	if s.noScript {
		return redis.NewCmdResult(nil, serverError("NOSCRIPT No matching script. Please use EVAL."))
	}
	return s.run(keys, args)
}

func (s *scripterStub) EvalRO(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd {
	return s.Eval(ctx, script, keys, args...)
}

func (s *scripterStub) EvalShaRO(ctx context.Context, sha1 string, keys []string, args ...interface{}) *redis.Cmd {
	return s.EvalSha(ctx, sha1, keys, args...)
}

func (s *scripterStub) ScriptExists(ctx context.Context, hashes ...string) *redis.BoolSliceCmd {
	return redis.NewBoolSliceResult(make([]bool, len(hashes)), nil)
}

func (s *scripterStub) ScriptLoad(ctx context.Context, script string) *redis.StringCmd {
	return redis.NewStringResult("", nil)
}

func TestRedisMemberLimiter_AdmitsUpToLimitThenRefuses(t *testing.T) {
	stub := newScripterStub()
	limiter := NewRedisMemberLimiter(stub, "club:limits:", 3)
	member := uuid.New()

	for i := 0; i < 3; i++ {
		if err := limiter.Allow(context.Background(), rateScopeConfirm, member); err != nil {
			t.Fatalf("attempt %d: expected admit, got %v", i+1, err)
		}
	}
	err := limiter.Allow(context.Background(), rateScopeConfirm, member)
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) || rateErr.RetryAfterSeconds != 42 {
		t.Fatalf("expected RateLimitError with retry 42s, got %v", err)
	}

	wantKey := "club:limits:member:" + member.String() + ":" + rateScopeConfirm
	if len(stub.keys) != 1 || stub.keys[0] != wantKey {
		t.Fatalf("expected key %q, got %v", wantKey, stub.keys)
	}
	if stub.args[0] != 3 || stub.args[1] != memberActionWindow.Milliseconds() {
		t.Fatalf("expected limit 3 and window %d, got %v", memberActionWindow.Milliseconds(), stub.args)
	}
	if stub.counts[wantKey] != 3 {
		t.Fatalf("expected refused attempt to leave the counter at 3, got %d", stub.counts[wantKey])
	}

	if err := limiter.Allow(context.Background(), rateScopeResubmit, member); err != nil {
		t.Fatalf("expected a separate counter per action, got %v", err)
	}
	if err := limiter.Allow(context.Background(), rateScopeConfirm, uuid.New()); err != nil {
		t.Fatalf("expected a separate counter per member, got %v", err)
	}
}

func TestRedisMemberLimiter_RetryAfterIsAtLeastOneSecond(t *testing.T) {
	stub := newScripterStub()
	stub.ttlMs = 0
	limiter := NewRedisMemberLimiter(stub, "", 1)
	member := uuid.New()

	_ = limiter.Allow(context.Background(), rateScopeConfirm, member)
	var rateErr *RateLimitError
	if err := limiter.Allow(context.Background(), rateScopeConfirm, member); !errors.As(err, &rateErr) || rateErr.RetryAfterSeconds != 1 {
		t.Fatalf("expected retry of 1s, got %v", err)
	}
	if want := "treasury:rate_limit:member:" + member.String() + ":" + rateScopeConfirm; stub.keys[0] != want {
		t.Fatalf("expected default prefix key %q, got %q", want, stub.keys[0])
	}
}

func TestRedisMemberLimiter_FallsBackToEvalOnNoScript(t *testing.T) {
	stub := newScripterStub()
	stub.noScript = true
	limiter := NewRedisMemberLimiter(stub, "", 5)

	if err := limiter.Allow(context.Background(), rateScopeConfirm, uuid.New()); err != nil {
		t.Fatalf("expected admit after EVAL fallback, got %v", err)
	}
	if stub.evals != 1 {
		t.Fatalf("expected one EVAL, got %d", stub.evals)
	}
}

func TestRedisMemberLimiter_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply interface{}
		err   error
	}{
		{name: "redis error", err: errors.New("connection refused")},
		{name: "short reply", reply: []interface{}{int64(1)}},
		{name: "wrong types", reply: []interface{}{"1", int64(10)}},
		{name: "not a list", reply: int64(1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newScripterStub()
			stub.reply, stub.err = tt.reply, tt.err
			err := NewRedisMemberLimiter(stub, "", 5).Allow(context.Background(), rateScopeConfirm, uuid.New())
			if err == nil || errors.Is(err, ErrRateLimited) {
				t.Fatalf("expected an outage error distinct from a refusal, got %v", err)
			}
		})
	}
}

func TestRedisMemberLimiter_SkipsWithoutWork(t *testing.T) {
	stub := newScripterStub()
	limiter := NewRedisMemberLimiter(stub, "", 5)

	if err := limiter.Allow(context.Background(), " ", uuid.New()); err != nil {
		t.Fatalf("expected blank action to be admitted, got %v", err)
	}
	if err := limiter.Allow(context.Background(), rateScopeConfirm, uuid.Nil); err != nil {
		t.Fatalf("expected nil member to be admitted, got %v", err)
	}
	if stub.keys != nil {
		t.Fatalf("expected no script calls, got keys %v", stub.keys)
	}

	var nilLimiter *RedisMemberLimiter
	if err := nilLimiter.Allow(context.Background(), rateScopeConfirm, uuid.New()); err != nil {
		t.Fatalf("expected nil limiter to admit, got %v", err)
	}
}
