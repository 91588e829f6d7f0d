package gpio

import (
	"fmt"

	"github.com/rs/zerolog"
	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
)

// MCP3008Sensor samples the pressure transducer through an MCP3008 ADC on
// SPI. The 10-bit raw count is converted with the same offset/scale rule as
// the generic ADC sensor.
type MCP3008Sensor struct {
	port     spi.PortCloser
	conn     spi.Conn
	channel  byte
	settings SensorSettings
	last     int32
	logger   zerolog.Logger
}

// NewMCP3008Sensor opens the named SPI port ("" selects the first one) and
// prepares the converter on the given channel.
func NewMCP3008Sensor(portName string, channel int, settings SensorSettings, logger zerolog.Logger) (*MCP3008Sensor, error) {
	if channel < 0 || channel > 7 {
		return nil, fmt.Errorf("mcp3008 channel %d out of range", channel)
	}
	if settings.ScaleDen == 0 {
		return nil, fmt.Errorf("sensor scale denominator must not be zero")
	}
	if settings.ScaleNum == 0 {
		settings.ScaleNum = 1
	}
	port, err := spireg.Open(portName)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", portName, err)
	}
	conn, err := port.Connect(physic.MegaHertz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("connect mcp3008: %w", err)
	}
	return &MCP3008Sensor{
		port:     port,
		conn:     conn,
		channel:  byte(channel),
		settings: settings,
		logger:   logger.With().Str("component", "pressure_sensor").Str("adc", "mcp3008").Logger(),
	}, nil
}

func (s *MCP3008Sensor) ReadPressure(_ uint16) int32 {
	// Single-ended conversion: start bit, SGL/DIFF=1 plus channel, then
	// clock out ten result bits.
	write := []byte{0x01, 0x80 | s.channel<<4, 0x00}
	read := make([]byte, 3)
	if err := s.conn.Tx(write, read); err != nil {
		s.logger.Error().Err(err).Msg("spi transfer failed")
		return s.last
	}
	raw := int32(read[1]&0x03)<<8 | int32(read[2])
	s.last = (raw + s.settings.Offset) * s.settings.ScaleNum / s.settings.ScaleDen
	return s.last
}

// Close releases the SPI port.
func (s *MCP3008Sensor) Close() error {
	return s.port.Close()
}
