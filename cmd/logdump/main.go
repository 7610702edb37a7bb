// Log dump tool: converts a binary log downloaded from the device into CSV.
// Records that fail their checksum are skipped and counted.
package main

import (
	"encoding/csv"
	"flag"
	"io"
	"log"
	"os"

	"GpsLogger/internal/parser"
	"GpsLogger/internal/storage"
)

func main() {
	in := flag.String("i", "", "binary log file to decode")
	out := flag.String("o", "", "CSV output file (default stdout)")
	flag.Parse()
	if *in == "" {
		flag.Usage()
		os.Exit(2)
	}

	f, err := os.Open(*in)
	if err != nil {
		log.Fatalf("open %s: %v", *in, err)
	}
	defer f.Close()

	var w io.Writer = os.Stdout
	if *out != "" {
		of, err := os.Create(*out)
		if err != nil {
			log.Fatalf("create %s: %v", *out, err)
		}
		defer of.Close()
		w = of
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(parser.CSVHeader()); err != nil {
		log.Fatalf("write header: %v", err)
	}
	sum, err := storage.ReadLog(f, func(p parser.Packet) error {
		return cw.Write(p.CSVRow())
	})
	cw.Flush()
	if err == nil {
		err = cw.Error()
	}
	if err != nil {
		log.Fatalf("dump %s: %v", *in, err)
	}
	log.Printf("[logdump] %s: %d records, %d bad checksum, %d trailing bytes",
		*in, sum.Records, sum.BadCRC, sum.Trailing)
}
