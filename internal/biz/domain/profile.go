package domain

import (
	"strings"
	"time"
)

// DigestFrequency is the subscriber's minimum interval between digests
type DigestFrequency string

const (
	Frequency1h  DigestFrequency = "1h"
	Frequency3h  DigestFrequency = "3h"
	Frequency6h  DigestFrequency = "6h"
	Frequency12h DigestFrequency = "12h"
	Frequency24h DigestFrequency = "24h"
)

var frequencyHours = map[DigestFrequency]int{
	Frequency1h:  1,
	Frequency3h:  3,
	Frequency6h:  6,
	Frequency12h: 12,
	Frequency24h: 24,
}

// ParseFrequency maps free text to a known frequency, defaulting to hourly
func ParseFrequency(s string) DigestFrequency {
	f := DigestFrequency(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := frequencyHours[f]; ok {
		return f
	}
	return Frequency1h
}

// Interval returns the frequency as a duration
func (f DigestFrequency) Interval() time.Duration {
	h, ok := frequencyHours[f]
	if !ok {
		h = 1
	}
	return time.Duration(h) * time.Hour
}

// DefaultSummarizeAfterSeconds is the audio length above which summaries replace transcripts
const DefaultSummarizeAfterSeconds = 45

// SubscriberProfile holds the per-subscriber preferences the pipeline reads
type SubscriberProfile struct {
	ID                    string
	InstanceName          string
	Number                string
	UrgentTopics          string
	ImportantTopics       string
	IgnoreTopics          string
	BusinessHoursOnly     bool
	BusinessHoursStart    *int
	BusinessHoursEnd      *int
	Frequency             DigestFrequency
	LastDigestAt          *time.Time
	AudioDigest           bool
	ResumeAudio           bool
	SummarizeAfterSeconds int
	TranscribeSent        bool
	TranscribeReceived    bool
	SendOnReaction        bool
	SendPrivateOnly       bool
	AutoDeleteLowPriority bool
}

// NewSubscriberProfile returns a profile with the documented defaults
func NewSubscriberProfile(id string) *SubscriberProfile {
	return &SubscriberProfile{
		ID:                    id,
		Frequency:             Frequency1h,
		SummarizeAfterSeconds: DefaultSummarizeAfterSeconds,
		TranscribeSent:        true,
		TranscribeReceived:    true,
	}
}

// Phone returns the subscriber's destination number as digits
func (p *SubscriberProfile) Phone() string {
	return Digits(p.Number)
}

// BusinessWindow is an hour range [Start, End) in local time
type BusinessWindow struct {
	Start int
	End   int
}

// Contains reports whether the hour of t falls inside the window.
// A window whose end is not after its start wraps past midnight.
func (w BusinessWindow) Contains(t time.Time) bool {
	h := t.Hour()
	if w.Start == w.End {
		return true
	}
	if w.Start < w.End {
		return h >= w.Start && h < w.End
	}
	return h >= w.Start || h < w.End
}

// Window returns the profile's business window, falling back to def
func (p *SubscriberProfile) Window(def BusinessWindow) BusinessWindow {
	w := def
	if p.BusinessHoursStart != nil {
		w.Start = *p.BusinessHoursStart
	}
	if p.BusinessHoursEnd != nil {
		w.End = *p.BusinessHoursEnd
	}
	return w
}

// WithinBusinessHours applies the business-hours gate; profiles without the gate always pass
func (p *SubscriberProfile) WithinBusinessHours(localNow time.Time, def BusinessWindow) bool {
	if !p.BusinessHoursOnly {
		return true
	}
	return p.Window(def).Contains(localNow)
}

// DigestDue applies the frequency gate. Hourly never gates, nor does a
// subscriber who has not received a digest yet.
func (p *SubscriberProfile) DigestDue(now time.Time) bool {
	freq := ParseFrequency(string(p.Frequency))
	if freq == Frequency1h || p.LastDigestAt == nil {
		return true
	}
	return now.Sub(*p.LastDigestAt) >= freq.Interval()
}

// Subscriber is an entitlement row
type Subscriber struct {
	UserID          string
	Subscribed      bool
	SubscriptionEnd *time.Time
}

// Active reports whether the entitlement is current at now
func (s Subscriber) Active(now time.Time) bool {
	return s.Subscribed && s.SubscriptionEnd != nil && !s.SubscriptionEnd.Before(now)
}

// JobType names an asynchronous job
type JobType string

const (
	JobAnalyzeUser JobType = "analyze_user"
	JobRunHourly   JobType = "run_hourly"
)

// Job is the envelope carried on the work queues
type Job struct {
	Type    JobType `json:"type" validate:"required,oneof=analyze_user run_hourly"`
	UserID  string  `json:"user_id,omitempty" validate:"required_if=Type analyze_user"`
	Trigger string  `json:"trigger,omitempty"`
}

// ProfileMetrics are increments to a subscriber's lifetime counters
type ProfileMetrics struct {
	AudioSeconds             int
	MessagesAnalyzed         int
	ConversationsPrioritized int
}
