// stationsync is a one-off CLI that bootstraps internal/stationstore's
// (source, station_id) -> coordinates mapping from a CSV export, since
// station metadata is not itself published by the flood/hydrology/
// rainfall APIs C2 consumes.
package main

import (
	"context"
	"database/sql"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"

	_ "github.com/lib/pq"

	"github.com/riverwatch/riverwatch/internal/model"
	"github.com/riverwatch/riverwatch/internal/stationstore"
)

func main() {
	dsn := flag.String("dsn", os.Getenv("RIVERWATCH_STORAGE_POSTGRES_URL"), "postgres DSN")
	source := flag.String("source", "", "source: flood, hydrology, or rainfall")
	csvPath := flag.String("csv", "", "path to a CSV with columns source_id,lat,lon,easting,northing,label")
	flag.Parse()

	if *dsn == "" || *source == "" || *csvPath == "" {
		fmt.Fprintln(os.Stderr, "usage: stationsync -source flood -csv stations.csv -dsn postgres://...")
		os.Exit(2)
	}

	db, err := sql.Open("postgres", *dsn)
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	defer db.Close()

	store := stationstore.New(db)
	count, err := sync(context.Background(), store, model.Source(*source), *csvPath)
	if err != nil {
		log.Fatalf("sync failed after %d stations: %v", count, err)
	}
	log.Printf("synced %d stations for source %s", count, *source)
}

func sync(ctx context.Context, store *stationstore.Store, source model.Source, csvPath string) (int, error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", csvPath, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}

	count := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("read row %d: %w", count+1, err)
		}

		lat, _ := strconv.ParseFloat(record[col["lat"]], 64)
		lon, _ := strconv.ParseFloat(record[col["lon"]], 64)
		var easting, northing float64
		if i, ok := col["easting"]; ok {
			easting, _ = strconv.ParseFloat(record[i], 64)
		}
		if i, ok := col["northing"]; ok {
			northing, _ = strconv.ParseFloat(record[i], 64)
		}
		var label string
		if i, ok := col["label"]; ok {
			label = record[i]
		}

		st := model.Station{
			Source:    source,
			StationID: record[col["source_id"]],
			Lat:       lat,
			Lon:       lon,
			Easting:   easting,
			Northing:  northing,
			Label:     label,
		}
		if err := store.Upsert(ctx, st); err != nil {
			return count, fmt.Errorf("upsert %s: %w", st.StationID, err)
		}
		count++
	}
	return count, nil
}
