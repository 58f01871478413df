package main

import (
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// Layout of time.Time.String() as stored by the dive log writer.
const timeLayout = "2006-01-02 15:04:05.999999999 -0700 MST"

var dbPath = "/var/log/bathyx/divelog.sqlite"

func imageWriter() {
	for {
		p, err := plot.New()
		if err != nil {
			panic(err)
		}
		p.Title.Text = "Dive Profile"
		p.X.Label.Text = "Minutes"
		p.Y.Label.Text = "Depth, m"

		db, err := sql.Open("sqlite3", dbPath)
		if err != nil {
			panic(err)
		}

		rows, err := db.Query("SELECT LastMeasurementTime, Depth FROM measurements WHERE session_id = (SELECT MAX(id) FROM sessions) ORDER BY id")
		if err != nil {
			panic(err)
		}

		var t0 time.Time
		vals := make(plotter.XYs, 0)
		for rows.Next() {
			var ts string
			var depth float64
			if err := rows.Scan(&ts, &depth); err != nil {
				continue
			}
			tm, err := time.Parse(timeLayout, ts)
			if err != nil {
				continue
			}
			if t0.IsZero() {
				t0 = tm
			}
			// Deeper is drawn lower.
			vals = append(vals, plotter.XY{X: tm.Sub(t0).Minutes(), Y: -depth})
		}
		rows.Close()
		db.Close()

		err = plotutil.AddLines(p, "Depth", vals)
		if err != nil {
			panic(err)
		}
		if err := p.Save(8*vg.Inch, 6*vg.Inch, "dive.png"); err != nil {
			panic(err)
		}
		time.Sleep(5000 * time.Millisecond)
	}
}

func main() {
	if len(os.Args) > 1 {
		dbPath = os.Args[1]
	}
	go imageWriter()
	http.Handle("/", http.FileServer(http.Dir(".")))
	err := http.ListenAndServe(":8080", nil)

	if err != nil {
		fmt.Printf("dive_plot ListenAndServe: %s\n", err.Error())
	}

	for {
		time.Sleep(1 * time.Second)
	}
}
