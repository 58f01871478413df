package main

import (
	"fmt"
	"time"

	"github.com/kidoman/embd"
	_ "github.com/kidoman/embd/host/all"

	"github.com/bathyx/bathyx/sensors/kellerld"
)

var i2cbus embd.I2CBus
var myKellerLD *kellerld.KellerLD

func initKellerLD() error {
	myKellerLD = &kellerld.KellerLD{Address: kellerld.Address, Bus: &i2cbus, Config: kellerld.Config{}}
	rng, err := myKellerLD.Init()
	if err != nil {
		return err
	}
	fmt.Printf("range %.1f..%.1f bar (%s), calibrated %s\n", rng.Min, rng.Max, rng.Mode, myKellerLD.CalibrationDate())
	return nil
}

func depthReader() {
	m, err := myKellerLD.ReadMeasurement(myKellerLD.Range())
	if err != nil {
		fmt.Printf("ReadMeasurement(): %s\n", err.Error())
		return
	}
	fmt.Printf("P %.5f bar  T %.2f C  depth %.3f m\n", m.Pressure, m.Temperature, m.Depth())
}

func initI2C() error {
	i2cbus = embd.NewI2CBus(1) //TODO: error checking.
	return nil
}

func main() {
	if err := initI2C(); err != nil { // I2C bus.
		fmt.Printf("initI2C(): %s\n", err.Error())
		return
	}
	if err := initKellerLD(); err != nil {
		fmt.Printf("initKellerLD(): %s\n", err.Error())
		i2cbus.Close()
		return
	}
	for {
		depthReader()
		time.Sleep(1 * time.Second)
	}
}
