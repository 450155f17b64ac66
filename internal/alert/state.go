// Package alert 实现了治疗师分诊所用的告警状态机。
//
// 一篇日记的告警只会单向前进：
//
//	NONE -> UNACKNOWLEDGED -> ACKNOWLEDGED -> RESOLVED
//
// 本包只包含纯函数，持久化由 repository 的条件写完成。
package alert

import (
	"errors"
	"fmt"
)

// State 是一篇日记的告警状态。
type State int

const (
	None State = iota
	Unacknowledged
	Acknowledged
	Resolved
)

func (s State) String() string {
	switch s {
	case None:
		return "NONE"
	case Unacknowledged:
		return "UNACKNOWLEDGED"
	case Acknowledged:
		return "ACKNOWLEDGED"
	case Resolved:
		return "RESOLVED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// MarshalText 让 State 在 JSON 中以名称输出。
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析 MarshalText 输出的名称。
func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{None, Unacknowledged, Acknowledged, Resolved} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown alert state %q", b)
}

var (
	ErrNoAlert             = errors.New("entry has no alert")
	ErrAlreadyAcknowledged = errors.New("alert already acknowledged")
	ErrAlreadyResolved     = errors.New("alert already resolved")
	ErrNotAcknowledged     = errors.New("alert must be acknowledged before it is resolved")
	ErrInconsistent        = errors.New("alert resolved without acknowledgement")
)

// Derive 由存储的三个标志推导状态。
// resolved 但未 acknowledged 的行被视为 Resolved，由 Validate 报告。
func Derive(analysisAlert, acknowledged, resolved bool) State {
	switch {
	case !analysisAlert:
		return None
	case resolved:
		return Resolved
	case acknowledged:
		return Acknowledged
	default:
		return Unacknowledged
	}
}

// Validate 检查存储标志的一致性。
func Validate(analysisAlert, acknowledged, resolved bool) error {
	if resolved && !acknowledged {
		return ErrInconsistent
	}
	if !analysisAlert && (acknowledged || resolved) {
		return fmt.Errorf("%w: flags set on an entry without alert", ErrNoAlert)
	}
	return nil
}

// Raise 在分析结果写入时调用；只有 alert=true 的结果能让 NONE 进入 UNACKNOWLEDGED。
func Raise(current State, analysisAlert bool) State {
	if current == None && analysisAlert {
		return Unacknowledged
	}
	return current
}

// Acknowledge 执行 UNACKNOWLEDGED -> ACKNOWLEDGED。
func Acknowledge(s State) (State, error) {
	switch s {
	case Unacknowledged:
		return Acknowledged, nil
	case None:
		return s, ErrNoAlert
	case Acknowledged:
		return s, ErrAlreadyAcknowledged
	case Resolved:
		return s, ErrAlreadyResolved
	}
	return s, fmt.Errorf("unknown alert state %v", s)
}

// Resolve 执行 ACKNOWLEDGED -> RESOLVED，未确认的告警不能直接解决。
func Resolve(s State) (State, error) {
	switch s {
	case Acknowledged:
		return Resolved, nil
	case Unacknowledged:
		return s, ErrNotAcknowledged
	case None:
		return s, ErrNoAlert
	case Resolved:
		return s, ErrAlreadyResolved
	}
	return s, fmt.Errorf("unknown alert state %v", s)
}

// Urgency 是告警在界面上的紧急程度。
type Urgency string

const (
	UrgencyHigh   Urgency = "high"
	UrgencyMedium Urgency = "medium"
	UrgencyInfo   Urgency = "info"
	UrgencyNone   Urgency = "none"
)

// UrgencyOf 返回状态对应的紧急程度。
func UrgencyOf(s State) Urgency {
	switch s {
	case Unacknowledged:
		return UrgencyHigh
	case Acknowledged:
		return UrgencyMedium
	case Resolved:
		return UrgencyInfo
	default:
		return UrgencyNone
	}
}

// IsTransitionError 判断 err 是否为非法状态迁移。
func IsTransitionError(err error) bool {
	return errors.Is(err, ErrNoAlert) ||
		errors.Is(err, ErrAlreadyAcknowledged) ||
		errors.Is(err, ErrAlreadyResolved) ||
		errors.Is(err, ErrNotAcknowledged)
}
