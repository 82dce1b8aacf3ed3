package diagnose

import (
	"errors"
	"testing"
	"time"

	"portfolio-replay/internal/market"
)

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := time.ParseInLocation("2006-01-02", value, time.UTC)
	if err != nil {
		t.Fatalf("parse date %q: %v", value, err)
	}
	return d
}

func gapCause(t *testing.T, err error) *GapError {
	t.Helper()
	var gap *GapError
	if !errors.As(err, &gap) {
		t.Fatalf("expected *GapError, got %v", err)
	}
	return gap
}

// 2026-01-05 周一 … 2026-01-09 周五；10/11 为周末。
func weekCalendar(t *testing.T) market.Calendar {
	t.Helper()
	return market.NewCalendar([]time.Time{
		day(t, "2026-01-05"),
		day(t, "2026-01-06"),
		day(t, "2026-01-07"),
		day(t, "2026-01-08"),
		day(t, "2026-01-09"),
	})
}

func TestCheck_ExecutionPending(t *testing.T) {
	gap := gapCause(t, Check(weekCalendar(t), day(t, "2026-01-08"), day(t, "2026-01-06")))
	if gap.Cause != CauseExecutionPending {
		t.Fatalf("cause = %s, want %s", gap.Cause, CauseExecutionPending)
	}
	if !gap.RetryAfter.Equal(day(t, "2026-01-08")) {
		t.Errorf("retry after = %s, want execution date", gap.RetryAfter.Format("2006-01-02"))
	}
}

func TestCheck_AwaitingSettlement(t *testing.T) {
	// 执行日就是今天，且当日行情还没出现在观测日历中——报告等待结算而不是崩溃。
	cal := market.NewCalendar([]time.Time{
		day(t, "2026-01-05"),
		day(t, "2026-01-06"),
	})
	gap := gapCause(t, Check(cal, day(t, "2026-01-07"), day(t, "2026-01-07")))
	if gap.Cause != CauseAwaitingSettlement {
		t.Fatalf("cause = %s, want %s", gap.Cause, CauseAwaitingSettlement)
	}
}

func TestCheck_ProviderLag(t *testing.T) {
	cal := market.NewCalendar([]time.Time{
		day(t, "2026-01-05"),
		day(t, "2026-01-06"),
	})
	gap := gapCause(t, Check(cal, day(t, "2026-01-07"), day(t, "2026-01-08")))
	if gap.Cause != CauseProviderLag {
		t.Fatalf("cause = %s, want %s", gap.Cause, CauseProviderLag)
	}
}

func TestCheck_NonTradingDay(t *testing.T) {
	gap := gapCause(t, Check(weekCalendar(t), day(t, "2026-01-10"), day(t, "2026-01-14")))
	if gap.Cause != CauseNonTradingDay {
		t.Fatalf("cause = %s, want %s", gap.Cause, CauseNonTradingDay)
	}
	if !gap.RetryAfter.Equal(day(t, "2026-01-12")) {
		t.Errorf("retry after = %s, want following monday", gap.RetryAfter.Format("2006-01-02"))
	}
}

func TestCheck_HolidayClosure(t *testing.T) {
	// 2026-01-07 为工作日但行情缺失且已过去多日：判定节假日/停牌，并提示最近的后续观测日。
	cal := market.NewCalendar([]time.Time{
		day(t, "2026-01-05"),
		day(t, "2026-01-06"),
		day(t, "2026-01-08"),
		day(t, "2026-01-09"),
	})
	gap := gapCause(t, Check(cal, day(t, "2026-01-07"), day(t, "2026-01-12")))
	if gap.Cause != CauseHolidayClosure {
		t.Fatalf("cause = %s, want %s", gap.Cause, CauseHolidayClosure)
	}
	if gap.Hint == "" {
		t.Errorf("expected remediation hint naming the next observed date")
	}
}

func TestCheck_InsufficientTrailing(t *testing.T) {
	gap := gapCause(t, Check(weekCalendar(t), day(t, "2026-01-09"), day(t, "2026-01-09")))
	if gap.Cause != CauseInsufficientTrailing {
		t.Fatalf("cause = %s, want %s", gap.Cause, CauseInsufficientTrailing)
	}
	if !gap.RetryAfter.Equal(day(t, "2026-01-12")) {
		t.Errorf("retry after = %s, want next calendar trading day", gap.RetryAfter.Format("2006-01-02"))
	}
}

func TestCheck_Pass(t *testing.T) {
	if err := Check(weekCalendar(t), day(t, "2026-01-08"), day(t, "2026-01-09")); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
