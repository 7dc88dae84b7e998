package common

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

// discordEpoch is the first second of 2015, the epoch of Discord snowflakes.
const discordEpoch int64 = 1420070400000

//NewCutUUIDString returns uuid string that cut `-`.
func NewCutUUIDString() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}

// DecodeTimeInSnowflake returns the creation time encoded in a Discord id,
// nil when id is not a snowflake.
func DecodeTimeInSnowflake(id string) *time.Time {
	sid, err := snowflake.ParseString(id)
	if err != nil {
		log.Debugf("parse snowflake id %v:%v", id, err)
		return nil
	}
	ms := (sid.Int64() >> 22) + discordEpoch
	t := time.Unix(0, ms*int64(time.Millisecond)).UTC()
	return &t
}

// Abbreviate keeps the first n characters of str and appends "..." when
// something was cut.
func Abbreviate(str string, n int) string {
	if CharCount(str) <= n {
		return str
	}
	return SubChar(str, 0, n) + "..."
}

// SubChar returns the characters in [charFrom, CharTo).
func SubChar(str string, charFrom, CharTo int) string {
	if str == "" {
		return str
	}
	if charFrom < 0 {
		charFrom = 0
	}
	if charFrom >= CharTo {
		return ""
	}
	if CharTo >= CharCount(str) {
		return str
	}
	var charCount int
	var startB int
	var endB int
	var imageMinLen = 4
	for _, value := range str {
		_, size := utf8.DecodeRuneInString(string(value))
		if size < imageMinLen {
			charCount++
		} else {
			charCount += size - utf8.RuneCountInString(string(value))*2
		}
		if charCount > charFrom && charCount <= CharTo {
			endB += size
		} else if charCount <= charFrom {
			startB += size
			endB += size
		} else {
			break
		}
	}
	return str[startB:endB]
}

func CharCount(str string) int {
	var charCount int
	var imageMinLen = 4
	for _, value := range str {
		_, size := utf8.DecodeRuneInString(string(value))
		if size < imageMinLen {
			charCount++
			continue
		}
		charCount += size - utf8.RuneCountInString(string(value))*2
	}
	return charCount
}
