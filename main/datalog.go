/*
	Copyright (c) 2026 bathyx contributors
	Distributable under the terms of The "BSD New" License
	that can be found in the LICENSE file, herein included
	as part of this header.

	datalog.go: Log dive data as it is received. One session row per daemon
	run, measurement rows linked to their session.
*/

package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/gansidui/geohash"
	_ "github.com/mattn/go-sqlite3"
	"github.com/ricochet2200/go-disk-usage/du"
)

const diveLogFile = "divelog.sqlite"

// Precision 9 resolves to under five meters, plenty for relocating a site.
const siteGeohashPrecision = 9

type DiveSession struct {
	id        int64
	StartTime time.Time
	Site      string // operator-entered site name, may be empty
	Geohash   string
	Lat       float64
	Lng       float64
	Version   string
}

var dataLogSession DiveSession // Current session row.

type SQLiteMarshal struct {
	FieldType string
	Marshal   func(v reflect.Value) string
}

func boolMarshal(v reflect.Value) string {
	b := v.Bool()
	if b {
		return "1"
	}
	return "0"
}

func structCanBeMarshalled(v reflect.Value) bool {
	m := v.MethodByName("String")
	if m.IsValid() && !m.IsNil() {
		return true
	}
	return false
}

func intMarshal(v reflect.Value) string {
	return strconv.FormatInt(v.Int(), 10)
}

func uintMarshal(v reflect.Value) string {
	return strconv.FormatUint(v.Uint(), 10)
}

func floatMarshal(v reflect.Value) string {
	return strconv.FormatFloat(v.Float(), 'f', 10, 64)
}

func stringMarshal(v reflect.Value) string {
	return v.String()
}

func notsupportedMarshal(v reflect.Value) string {
	return ""
}

func structMarshal(v reflect.Value) string {
	if structCanBeMarshalled(v) {
		m := v.MethodByName("String")
		in := make([]reflect.Value, 0)
		ret := m.Call(in)
		if len(ret) > 0 {
			return ret[0].String()
		}
	}
	return ""
}

var sqliteMarshalFunctions = map[string]SQLiteMarshal{
	"bool":         {FieldType: "INTEGER", Marshal: boolMarshal},
	"int":          {FieldType: "INTEGER", Marshal: intMarshal},
	"uint":         {FieldType: "INTEGER", Marshal: uintMarshal},
	"float":        {FieldType: "REAL", Marshal: floatMarshal},
	"string":       {FieldType: "TEXT", Marshal: stringMarshal},
	"struct":       {FieldType: "STRING", Marshal: structMarshal},
	"notsupported": {FieldType: "notsupported", Marshal: notsupportedMarshal},
}

var sqlTypeMap = map[reflect.Kind]string{
	reflect.Bool:          "bool",
	reflect.Int:           "int",
	reflect.Int8:          "int",
	reflect.Int16:         "int",
	reflect.Int32:         "int",
	reflect.Int64:         "int",
	reflect.Uint:          "uint",
	reflect.Uint8:         "uint",
	reflect.Uint16:        "uint",
	reflect.Uint32:        "uint",
	reflect.Uint64:        "uint",
	reflect.Uintptr:       "notsupported",
	reflect.Float32:       "float",
	reflect.Float64:       "float",
	reflect.Complex64:     "notsupported",
	reflect.Complex128:    "notsupported",
	reflect.Array:         "notsupported",
	reflect.Chan:          "notsupported",
	reflect.Func:          "notsupported",
	reflect.Interface:     "notsupported",
	reflect.Map:           "notsupported",
	reflect.Ptr:           "notsupported",
	reflect.Slice:         "notsupported",
	reflect.String:        "string",
	reflect.Struct:        "struct",
	reflect.UnsafePointer: "notsupported",
}

func makeTable(i interface{}, tbl string, db *sql.DB) {
	val := reflect.ValueOf(i)

	fields := make([]string, 0)
	for i := 0; i < val.NumField(); i++ {
		kind := val.Field(i).Kind()
		fieldName := val.Type().Field(i).Name
		sqlTypeAlias := sqlTypeMap[kind]

		// Check that if the field is a struct that it can be marshalled.
		if sqlTypeAlias == "struct" && !structCanBeMarshalled(val.Field(i)) {
			continue
		}
		if sqlTypeAlias == "notsupported" || fieldName == "id" {
			continue
		}
		sqlType := sqliteMarshalFunctions[sqlTypeAlias].FieldType
		s := fieldName + " " + sqlType
		fields = append(fields, s)
	}

	// Add the session_id field to link up with the sessions table.
	if tbl != "sessions" {
		fields = append(fields, "session_id INTEGER")
	}

	tblCreate := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id INTEGER NOT NULL PRIMARY KEY AUTOINCREMENT, %s)", tbl, strings.Join(fields, ", "))
	_, err := db.Exec(tblCreate)
	if err != nil {
		log.Printf("%s: %s\n", tblCreate, err.Error())
	}
}

func insertData(i interface{}, tbl string, db *sql.DB) int64 {
	val := reflect.ValueOf(i)

	keys := make([]string, 0)
	values := make([]string, 0)
	for i := 0; i < val.NumField(); i++ {
		kind := val.Field(i).Kind()
		fieldName := val.Type().Field(i).Name
		sqlTypeAlias := sqlTypeMap[kind]

		if sqlTypeAlias == "struct" && !structCanBeMarshalled(val.Field(i)) {
			continue
		}
		if sqlTypeAlias == "notsupported" || fieldName == "id" {
			continue
		}

		v := sqliteMarshalFunctions[sqlTypeAlias].Marshal(val.Field(i))

		keys = append(keys, fieldName)
		values = append(values, v)
	}

	// Add the session_id field to link up with the sessions table.
	if tbl != "sessions" {
		keys = append(keys, "session_id")
		values = append(values, strconv.FormatInt(dataLogSession.id, 10))
	}

	tblInsert := fmt.Sprintf("INSERT INTO %s (%s) VALUES(%s)", tbl, strings.Join(keys, ","),
		strings.Join(strings.Split(strings.Repeat("?", len(keys)), ""), ","))

	ifs := make([]interface{}, len(values))
	for i := 0; i < len(values); i++ {
		ifs[i] = values[i]
	}
	res, err := db.Exec(tblInsert, ifs...)
	if err != nil {
		log.Printf("%s: %s\n", tblInsert, err.Error())
		return 0
	}
	id, err := res.LastInsertId()
	if err == nil {
		return id
	}

	return 0
}

type DataLogRow struct {
	tbl  string
	data interface{}
}

var dataLogChan chan DataLogRow

func dataLogWriter() {
	db, err := sql.Open("sqlite3", filepath.Join(logDirf, diveLogFile))
	if err != nil {
		log.Printf("sql.Open(): %s\n", err.Error())
		return
	}
	defer db.Close()

	makeTable(DiveSession{}, "sessions", db)
	makeTable(DiveData{}, "measurements", db)

	gh, _ := geohash.Encode(globalSettings.SiteLat, globalSettings.SiteLng, siteGeohashPrecision)
	dataLogSession = DiveSession{
		StartTime: time.Now().UTC(),
		Site:      globalSettings.SiteName,
		Geohash:   gh,
		Lat:       globalSettings.SiteLat,
		Lng:       globalSettings.SiteLng,
		Version:   bathyxVersion,
	}
	dataLogSession.id = insertData(dataLogSession, "sessions", db)

	for r := range dataLogChan {
		insertData(r.data, r.tbl, db)
	}
}

// logDiveData queues a measurement row. Rows are dropped rather than blocking
// the sensor loop when the writer falls behind.
func logDiveData(d DiveData) {
	if !globalSettings.DiveLog || dataLogChan == nil {
		return
	}
	select {
	case dataLogChan <- DataLogRow{tbl: "measurements", data: d}:
	default:
		logDbg("dive log writer behind, dropped row\n")
	}
}

func dataLogWatcher() {
	for {
		stat, err := os.Stat(filepath.Join(logDirf, diveLogFile))
		if err == nil {
			globalStatus.DiveLog_Size = stat.Size()
		}

		usage := du.NewDiskUsage(logDirf)
		if usage.Free() < 50*1024*1024 { // leave 50mb free
			if globalSettings.DiveLog {
				log.Printf("Space running out - disable dive logging for this run\n")
				globalSettings.DiveLog = false
			}
		}

		time.Sleep(30 * time.Second)
	}
}

func initDataLog() {
	dataLogChan = make(chan DataLogRow, 1024)
	go dataLogWriter()
	go dataLogWatcher()
}
