// Package feed turns raw depth-incremental feed lines into typed events.
//
// A line carries zero or more delimiter-bounded entries:
//
//	DI,48,...,{0,1,0,5578481,M,12210.5,10,...,1606809600123456789},{2,0,1,...}
//
// The Tokenizer extracts each entry as a list of string tokens with empty
// positions preserved. Decode reads the tokens selected by a model.Mapping and
// converts them to a model.RawEvent. Neither step returns errors: malformed
// blocks are dropped and counted, unparseable fields become absent.
package feed
