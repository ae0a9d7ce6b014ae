// Package script turns raw dialogue text into an ordered, validated sequence of
// speaker turns.
//
// Input follows a line-oriented "speaker: utterance" convention. English and
// Chinese role labels are accepted (customer/客戶, agent/客服) and full-width
// separators are folded before matching, so scripts pasted from CJK editors
// parse the same as ASCII ones. A valid script holds at least one turn from
// each role; consecutive turns from the same speaker are allowed.
package script
