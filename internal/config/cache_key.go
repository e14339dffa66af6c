package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentSessionKey returns the cache key holding the JTI of a student's only valid token
func (r *CacheKeyStruct) StudentSessionKey(studentID int) string {
	return fmt.Sprintf("login:%d", studentID)
}

// PaperKey returns the cache key for a question set's student-facing payload
func (r *CacheKeyStruct) PaperKey(classLevel, stream, set string) string {
	return fmt.Sprintf("paper:%s:%s:%s", classLevel, stream, set)
}

// PaperAnswerKey returns the cache key for a question set's answer key hash
func (r *CacheKeyStruct) PaperAnswerKey(classLevel, stream, set string) string {
	return fmt.Sprintf("paper:%s:%s:%s:key", classLevel, stream, set)
}

// PaperPattern matches every cached paper and answer key
func (r *CacheKeyStruct) PaperPattern() string {
	return "paper:*"
}

// StudentTabSwitchesKey returns the counter of logged tab switches for a student
func (r *CacheKeyStruct) StudentTabSwitchesKey(studentID int) string {
	return fmt.Sprintf("student:%d:tab_switches", studentID)
}

// StudentAnswersKey returns the latest autosaved answer map for a student
func (r *CacheKeyStruct) StudentAnswersKey(studentID int) string {
	return fmt.Sprintf("student:%d:answers", studentID)
}

// StudentResultKey returns the cache key for a student's graded result
func (r *CacheKeyStruct) StudentResultKey(studentID int) string {
	return fmt.Sprintf("student:%d:result", studentID)
}

// StudentSubmittedKey marks that a student's one submission has been claimed
func (r *CacheKeyStruct) StudentSubmittedKey(studentID int) string {
	return fmt.Sprintf("student:%d:submitted", studentID)
}

// SetCounterKey returns the round-robin counter used to hand out question sets
func (r *CacheKeyStruct) SetCounterKey(classLevel, stream string) string {
	return fmt.Sprintf("set_counter:%s:%s", classLevel, stream)
}

var CacheKey = NewCacheKeyStruct()
