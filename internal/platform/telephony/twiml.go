// Package telephony builds voice markup documents and pushes them to live
// calls.
package telephony

import (
	"encoding/xml"
	"strconv"

	"github.com/diagnosis/baywheel-hotline/internal/hotline/lingual"
)

// SpeechRate slows synthesized speech for callers on a phone line.
const SpeechRate = "80%"

const speechModel = "deepgram-nova-3"

type prosody struct {
	XMLName xml.Name `xml:"prosody"`
	Rate    string   `xml:"rate,attr"`
	Text    string   `xml:",chardata"`
}

type say struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Prosody  prosody
}

type pause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  int      `xml:"length,attr"`
}

type hangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type dial struct {
	XMLName xml.Name `xml:"Dial"`
	Number  string   `xml:",chardata"`
}

type verbs struct {
	Verbs []interface{}
}

func (v *verbs) add(verb interface{}) { v.Verbs = append(v.Verbs, verb) }

func (v *verbs) say(lang, text string) {
	v.add(say{
		Voice:    lingual.Voice(lang),
		Language: lang,
		Prosody:  prosody{Rate: SpeechRate, Text: text},
	})
}

// Response is a TwiML document under construction.
type Response struct {
	XMLName xml.Name `xml:"Response"`
	verbs
}

func NewResponse() *Response {
	return &Response{}
}

// Say speaks text in lang's voice at SpeechRate.
func (r *Response) Say(lang, text string) *Response {
	r.say(lang, text)
	return r
}

// SayKey speaks a lingual message.
func (r *Response) SayKey(lang string, key lingual.Key) *Response {
	return r.Say(lang, lingual.Message(lang, key))
}

func (r *Response) Pause(seconds int) *Response {
	r.add(pause{Length: seconds})
	return r
}

func (r *Response) Hangup() *Response {
	r.add(hangup{})
	return r
}

func (r *Response) Dial(number string) *Response {
	r.add(dial{Number: number})
	return r
}

func (r *Response) Gather(g *Gather) *Response {
	r.add(g)
	return r
}

// String renders the document with an XML declaration.
func (r *Response) String() string {
	out, err := xml.Marshal(r)
	if err != nil {
		// every verb type above marshals; keep the call alive regardless
		return xml.Header + "<Response><Hangup></Hangup></Response>"
	}
	return xml.Header + string(out)
}

// Gather collects DTMF digits or speech and posts them to Action.
type Gather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr"`
	NumDigits     string   `xml:"numDigits,attr,omitempty"`
	Timeout       string   `xml:"timeout,attr,omitempty"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	SpeechModel   string   `xml:"speechModel,attr,omitempty"`
	Language      string   `xml:"language,attr,omitempty"`
	verbs
}

// DigitsGather waits for numDigits key presses. timeout 0 keeps the
// provider default.
func DigitsGather(action string, numDigits, timeout int) *Gather {
	g := &Gather{Input: "dtmf", Action: action, Method: "POST", NumDigits: strconv.Itoa(numDigits)}
	if timeout > 0 {
		g.Timeout = strconv.Itoa(timeout)
	}
	return g
}

// SpeechGather waits for the caller to speak in lang.
func SpeechGather(action, lang string, timeout int) *Gather {
	return &Gather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		Timeout:       strconv.Itoa(timeout),
		SpeechTimeout: "auto",
		SpeechModel:   speechModel,
		Language:      lang,
	}
}

func (g *Gather) Say(lang, text string) *Gather {
	g.say(lang, text)
	return g
}

func (g *Gather) SayKey(lang string, key lingual.Key) *Gather {
	return g.Say(lang, lingual.Message(lang, key))
}

func (g *Gather) Pause(seconds int) *Gather {
	g.add(pause{Length: seconds})
	return g
}
